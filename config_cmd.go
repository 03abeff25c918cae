package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/storyfeed/internal/config"
)

const defaultConfig = `# story server to read from; leave empty to generate stories locally
# through Ollama (OLLAMA_HOST, MODEL_ID)
server: ""
# fixed voice (alloy, ash, ballad, coral, echo, sage, shimmer, verse);
# empty picks one at random for every story
voice: ""
# word-wrap subtitles at width (0 follows the terminal)
width: 0

# subtitle pacing, re-applied from the next story when this file changes
pacing:
  block_size: 35
  words_per_minute: 300
  min_block: 2s
  watchdog_interval: 300ms
  idle_flush: 1500ms
  small_tail: 6
  fallback_start_len: 120
  next_start_after: 20s
  max_words_per_story: 600
  # initial or continue
  next_mode: initial
  dual_stream: true
  # speak subtitles when a speech backend is available (press a to start)
  audio_enabled: true
  audio_paced: false

# speech retries
audio:
  max_retries: 2
  retry_base: 400ms
  synth_timeout: 30s
  # blocks waiting for speech before the oldest is skipped (0 keeps all)
  max_pending: 8

# requests per second to the story server's speech endpoint
speech:
  rate_limit: 4
  burst: 2

# synthesized clip cache
cache:
  memory_capacity: 33554432
  disk_capacity: 268435456
  disk_path: ""
  compression_level: 3
  ttl: 168h
  cleanup_interval: 1h

# where selected categories are kept: file, badger or memory
prefs:
  backend: file
  path: ""

# Ollama generation options
model:
  num_predict: 140
  temperature: 0.8
  top_p: 0.9
  num_thread: 8
  num_ctx: 2048

# storyfeed serve
serve:
  addr: "localhost:3000"
  max_feeds: 32
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the storyfeed config file",
	Long:    paragraph(fmt.Sprintf("\n%s the storyfeed config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("storyfeed config\nstoryfeed config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("storyfeed", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		f, err := config.DefaultConfigFile()
		if err != nil {
			return fmt.Errorf("could not find a configuration directory: %w", err)
		}
		configFile = f
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
