package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "modelbridge",
	Short: "One chat interface over three model-serving backends",
	Long: `modelbridge presents a single conversational contract backed by a
managed Gemini model on Vertex AI, a custom model on a Vertex AI
endpoint, or a self-hosted model behind an HTTP prediction URL.

Examples:
  modelbridge ask "what is six times seven"
  modelbridge ask --backend self_hosted "what is six times seven"
  modelbridge serve                     # websocket chat server`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
