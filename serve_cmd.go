package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/storyfeed/internal/cache"
	"github.com/dgnsrekt/storyfeed/internal/config"
	"github.com/dgnsrekt/storyfeed/internal/server"
	"github.com/dgnsrekt/storyfeed/internal/speech"
)

const (
	shutdownTimeout = 5 * time.Second
	statsInterval   = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stories, speech and a browser feed over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	logToStderr()

	store, err := settings.Prefs.Open(log.WithPrefix("prefs"))
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	svc := newBackend(settings, envCfg)

	clips, err := cache.NewManager(settings.Cache, log.WithPrefix("cache"))
	if err != nil {
		return fmt.Errorf("open clip cache: %w", err)
	}
	defer clips.Close() //nolint:errcheck

	opts := []server.Option{
		server.WithGenerateHandler(svc),
		server.WithPrefs(store),
		server.WithVoice(settings.Voice),
		server.WithMaxFeeds(settings.Serve.MaxFeeds),
		server.WithLogger(log.WithPrefix("server")),
	}
	if envCfg.OpenAIKey != "" {
		synth := speech.NewCached(newOpenAI(envCfg), clips)
		opts = append(opts, server.WithSpeechHandler(speech.NewHandler(synth, log.WithPrefix("speech"))))
	} else {
		log.Warn("OPENAI_API_KEY is not set; /api/tts will answer 503")
	}
	srv := server.New(svc, settings.Pacing, opts...)

	httpSrv := &http.Server{
		Addr:              settings.Serve.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchConfig(func(s config.Settings) error {
		return srv.SetOptions(s.Pacing)
	}, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening", "addr", httpSrv.Addr, "model", envCfg.ModelID)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", httpSrv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down", "feeds", srv.Feeds())
		_ = srv.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	g.Go(func() error {
		t := time.NewTicker(statsInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				logCacheStats(clips)
			}
		}
	})

	err = g.Wait()
	logCacheStats(clips)
	return err
}

func logCacheStats(clips *cache.Manager) {
	sum := clips.Summary()
	if sum.Memory.Hits+sum.Memory.Misses == 0 {
		return
	}
	log.Info("Clip cache",
		"memory", sum.Memory.String(),
		"disk", sum.Disk.String(),
		"promotions", humanize.Comma(sum.Promotions),
	)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default "+config.Default().Serve.Addr+")")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}
