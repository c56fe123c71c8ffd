package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"modelbridge/internal/backend"
	"modelbridge/internal/config"
	"modelbridge/internal/session"
)

var askBackend string

func init() {
	askCmd.Flags().StringVarP(&askBackend, "backend", "b", "", "Backend to use: managed_model, custom_endpoint or self_hosted")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Send one question to the selected backend and stream the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		id := backend.ID(cfg.DefaultBackend)
		if askBackend != "" {
			id = backend.ID(askBackend)
		}

		sess := session.New()
		if err := sess.AppendUser(strings.Join(args, " ")); err != nil {
			return err
		}

		dispatcher := buildDispatcher(cfg)
		stream, err := dispatcher.Send(cmd.Context(), id, sess.History())
		if err != nil {
			return err
		}
		defer stream.Close()

		_, err = sess.ConsumeAssistant(stream, func(frag backend.Fragment) {
			fmt.Fprint(os.Stdout, frag.Text)
		})
		fmt.Fprintln(os.Stdout)
		if err != nil && err != io.EOF && err != context.Canceled {
			return err
		}
		return nil
	},
}
