// Package main provides the entry point for the storyfeed CLI application.
package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	env "github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/internal/backend"
	"github.com/dgnsrekt/storyfeed/internal/config"
	"github.com/dgnsrekt/storyfeed/internal/prefs"
	"github.com/dgnsrekt/storyfeed/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	plain      bool
	speak      bool
	mouse      bool
	categories []string

	settings config.Settings
	envCfg   config.Env

	rootCmd = &cobra.Command{
		Use:   "storyfeed",
		Short: "Endless short stories, paced as subtitles",
		Long: paragraph(
			fmt.Sprintf("\nEndless short stories, generated as you read and shown as %s.", keyword("paced subtitles")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	var err error
	envCfg, err = config.LoadEnv()
	if err != nil {
		return err
	}
	setLogLevel(envCfg.Debug || viper.GetBool("debug"))

	// The config command must work on a broken file.
	switch cmd.Name() {
	case "config", "man":
		return nil
	}

	settings, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := settings.ResolvePaths(); err != nil {
		return err
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") && settings.Width == 0 {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
			settings.Width = min(w-4, 120)
		}
	}
	return nil
}

func execute(cmd *cobra.Command, _ []string) error {
	store, err := settings.Prefs.Open(log.WithPrefix("prefs"))
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if cmd.Flags().Changed("categories") {
		if err := prefs.SetCategories(store, categories); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	st, err := newStack(settings, envCfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	p, err := st.pipeline(prefs.Categories(store))
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	if speak {
		err := feed.ErrAudioDisabled
		if st.options(settings.Pacing).AudioEnabled {
			err = p.EnableAudio()
		}
		if err != nil {
			log.Warn("Audio unavailable", "err", err)
		}
	}

	if plain || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return ui.RunPlain(ctx, os.Stdout, p, settings.Width)
	}
	return runTUI(p, store, st)
}

func runTUI(p *feed.Pipeline, store prefs.Store, st *stack) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Width = settings.Width
	cfg.EnableMouse = mouse
	cfg.SpeechAvailable = st.options(settings.Pacing).AudioEnabled
	cfg.Genres = slices.Sorted(maps.Keys(backend.Genres))

	program := ui.NewProgram(cfg, p, store)
	watchConfig(func(s config.Settings) error {
		return p.SetOptions(st.options(s.Pacing))
	}, func(s config.Settings, err error) {
		program.Send(ui.ConfigReloadedMsg{Err: err, SpeechAvailable: st.options(s.Pacing).AudioEnabled})
	})

	// Run Bubble Tea program
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// watchConfig re-reads the config file whenever it changes and hands the new
// settings to apply. notify, if set, learns the outcome.
func watchConfig(apply func(config.Settings) error, notify func(config.Settings, error)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := config.Load(viper.GetViper())
		if err == nil {
			err = apply(s)
		}
		if err != nil {
			log.Warn("Could not apply configuration", "file", e.Name, "err", err)
		} else {
			log.Info("Configuration reloaded", "file", e.Name)
		}
		if notify != nil {
			notify(s, err)
		}
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "log debug messages")
	rootCmd.PersistentFlags().StringP("voice", "v", "", "fixed voice ("+strings.Join(feed.Voices, ", ")+")")
	rootCmd.Flags().StringP("server", "s", "", "story server URL (default: generate locally)")
	rootCmd.Flags().UintP("width", "w", 0, "word-wrap subtitles at width (0 follows the terminal)")
	rootCmd.Flags().StringSliceVarP(&categories, "categories", "c", nil, "story categories to use and remember")
	rootCmd.Flags().BoolVarP(&plain, "plain", "p", false, "print blocks as plain lines instead of the viewer")
	rootCmd.Flags().BoolVarP(&speak, "speak", "a", false, "speak subtitles from the start")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (viewer only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("server", rootCmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))

	rootCmd.AddCommand(serveCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs := config.ConfigDirs()
	if len(dirs) == 0 {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())
	viper.SetDefault("debug", false)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
	}
}

