// Package config gathers storyfeed's settings: environment-only values
// parsed with env tags, and the YAML file settings decoded through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds settings that only ever come from the environment.
type Env struct {
	OllamaHost    string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	ModelID       string `env:"MODEL_ID" envDefault:"llama3.1:8b"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	SpeechModel   string `env:"TTS_MODEL" envDefault:"gpt-4o-mini-tts"`
	Debug         bool   `env:"STORYFEED_DEBUG"`
	LogFile       string `env:"STORYFEED_LOG_FILE"`
}

// LoadEnv loads the given dotenv files, or .env in the working directory
// when none are named, then parses Env. Missing dotenv files are ignored and
// variables already set in the process win.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}
