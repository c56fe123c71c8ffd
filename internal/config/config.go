package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the read-only configuration surface, built once at process
// start. Absence of a value is not an error here; each backend adapter
// reports a configuration error for the values it actually requires.
type Config struct {
	Project     string `mapstructure:"project_id"`
	Region      string `mapstructure:"region"`
	GeminiModel string `mapstructure:"gemini_model"`

	EndpointID       string `mapstructure:"endpoint_id"`
	InstanceTemplate string `mapstructure:"instance_template"`
	PromptPath       string `mapstructure:"prompt_path"`
	PredictionPath   string `mapstructure:"prediction_path"`

	SelfHostedURL    string `mapstructure:"self_hosted_url"`
	SelfHostedAPIKey string `mapstructure:"self_hosted_api_key"`

	Port        int    `mapstructure:"port"`
	ServeToken  string `mapstructure:"serve_token"`
	SamplesFile string `mapstructure:"samples_file"`

	DefaultBackend string `mapstructure:"default_backend"`
}

// envBindings maps config keys to the environment variable names the
// original deployment uses.
var envBindings = map[string]string{
	"project_id":          "PROJECT_ID",
	"region":              "REGION",
	"gemini_model":        "VERTEX_AI_GEMINI_MODEL_NAME",
	"endpoint_id":         "VERTEX_AI_ENDPOINT_ID",
	"self_hosted_url":     "GKE_INFERENCE_ENDPOINT_URL",
	"self_hosted_api_key": "GKE_INFERENCE_API_KEY",
	"port":                "PORT",
	"serve_token":         "MODELBRIDGE_SERVE_TOKEN",
	"samples_file":        "SAMPLE_QUESTIONS_FILE",
	"default_backend":     "MODELBRIDGE_DEFAULT_BACKEND",
}

// Load reads an optional modelbridge.yaml plus the bound environment
// variables. A missing config file is fine; the env alone is a valid
// configuration source.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("modelbridge")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "modelbridge"))
	}
	v.AddConfigPath(".")

	v.SetDefault("region", "us-central1")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("port", 7860)
	v.SetDefault("default_backend", "managed_model")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
