// Package server exposes the story backend, the speech boundary and a
// websocket subtitle feed over HTTP.
package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/internal/backend"
	"github.com/dgnsrekt/storyfeed/internal/generate"
	"github.com/dgnsrekt/storyfeed/internal/prefs"
)

const (
	defaultPingInterval = 50 * time.Second
	writeWait           = 10 * time.Second
	maxClientMessage    = 4 << 10
)

// Server routes the story server's endpoints. Every websocket connection
// gets a pipeline of its own; nothing is shared between feeds except the
// story source and the preference store.
type Server struct {
	source   generate.Source
	generate http.Handler
	speech   http.Handler
	prefs    prefs.Store
	voice    string
	genres   []string
	logger   *log.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	maxFeeds     int

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	opts  feed.Options
	feeds map[*feedConn]struct{}

	mux *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithGenerateHandler serves h at /api/generate.
func WithGenerateHandler(h http.Handler) Option {
	return func(s *Server) { s.generate = h }
}

// WithSpeechHandler serves h at /api/tts.
func WithSpeechHandler(h http.Handler) Option {
	return func(s *Server) { s.speech = h }
}

// WithPrefs sets the store category selections are kept in.
func WithPrefs(p prefs.Store) Option {
	return func(s *Server) { s.prefs = p }
}

// WithVoice fixes the voice announced to every feed.
func WithVoice(v string) Option {
	return func(s *Server) { s.voice = v }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxFeeds caps concurrent websocket feeds. Zero means no cap.
func WithMaxFeeds(n int) Option {
	return func(s *Server) { s.maxFeeds = n }
}

// WithPingInterval sets how often idle feeds are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// New returns a Server whose feeds read stories from source. Speech is
// played by the browser, so audio options are switched off for feeds.
func New(source generate.Source, opts feed.Options, options ...Option) *Server {
	s := &Server{
		source:       source,
		prefs:        prefs.NewMemory(),
		genres:       slices.Sorted(maps.Keys(backend.Genres)),
		logger:       log.WithPrefix("server"),
		pingInterval: defaultPingInterval,
		opts:         feedOptions(opts),
		feeds:        make(map[*feedConn]struct{}),
		mux:          http.NewServeMux(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if s.generate != nil {
		s.mux.Handle(generate.DefaultPath, s.generate)
	}
	if s.speech != nil {
		s.mux.Handle("/api/tts", s.speech)
	}
	s.mux.HandleFunc("GET /ws", s.handleFeed)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetOptions replaces the pacing options for new feeds and for the next
// run of every open feed.
func (s *Server) SetOptions(opts feed.Options) error {
	opts = feedOptions(opts)
	if err := opts.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.opts = opts
	conns := slices.Collect(maps.Keys(s.feeds))
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.pipeline.SetOptions(opts); err != nil {
			c.logger.Debug("Could not update options", "err", err)
		}
	}
	return nil
}

// Feeds returns the number of open websocket feeds.
func (s *Server) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// Close ends every open feed. Hijacked connections are not closed by
// http.Server.Shutdown, so call it alongside.
func (s *Server) Close() error {
	s.cancel()
	return nil
}

func (s *Server) options() feed.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Server) register(c *feedConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxFeeds > 0 && len(s.feeds) >= s.maxFeeds {
		return false
	}
	s.feeds[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *feedConn) {
	s.mu.Lock()
	delete(s.feeds, c)
	n := len(s.feeds)
	s.mu.Unlock()
	s.logger.Info("Feed closed", "remote", c.remote, "open", n)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"feeds":  s.Feeds(),
	})
}

func feedOptions(opts feed.Options) feed.Options {
	opts.AudioEnabled = false
	opts.AudioPaced = false
	return opts
}
