package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/internal/prefs"
)

// feedConn is one browser connection and the pipeline feeding it.
type feedConn struct {
	conn     *websocket.Conn
	pipeline *feed.Pipeline
	prefs    prefs.Store
	logger   *log.Logger
	remote   string
	ping     time.Duration
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	categories := prefs.Categories(s.prefs)
	logger := s.logger.With("remote", r.RemoteAddr)

	options := []feed.Option{
		feed.WithLogger(logger.WithPrefix("feed")),
		feed.WithCategories(categories),
	}
	if s.voice != "" {
		options = append(options, feed.WithVoice(s.voice))
	}
	p, err := feed.New(s.source, s.options(), options...)
	if err != nil {
		logger.Error("Could not create feed", "err", err)
		http.Error(w, "feed unavailable", http.StatusInternalServerError)
		return
	}

	c := &feedConn{
		pipeline: p,
		prefs:    s.prefs,
		logger:   logger,
		remote:   r.RemoteAddr,
		ping:     s.pingInterval,
	}
	if !s.register(c) {
		p.Close() //nolint:errcheck
		http.Error(w, "too many feeds", http.StatusServiceUnavailable)
		return
	}
	defer s.unregister(c)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.Close() //nolint:errcheck
		logger.Debug("Upgrade failed", "err", err)
		return
	}
	c.conn = conn
	logger.Info("Feed opened", "categories", categories)

	c.serve(s.ctx)
}

// serve runs the connection until the browser leaves, a write fails or ctx
// ends.
func (c *feedConn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.conn.Close()
	defer c.pipeline.Close()

	if err := c.pipeline.Start(ctx); err != nil {
		c.logger.Error("Could not start feed", "err", err)
		return
	}
	go c.readPump(cancel)
	c.writePump(ctx)
}

func (c *feedConn) pongWait() time.Duration {
	return c.ping * 6 / 5
}

// readPump is the only reader of the connection.
func (c *feedConn) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait())) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Feed read failed", "err", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *feedConn) handle(msg Message) {
	switch msg.Type {
	case TypeNew:
		if err := c.pipeline.Reset(); err != nil && !errors.Is(err, feed.ErrClosed) {
			c.logger.Warn("Could not start new generation", "err", err)
		}
	case TypeCategories:
		if err := prefs.SetCategories(c.prefs, msg.Categories); err != nil {
			c.logger.Warn("Could not save categories", "err", err)
		}
		if err := c.pipeline.SetCategories(msg.Categories); err != nil && !errors.Is(err, feed.ErrClosed) {
			c.logger.Warn("Could not set categories", "err", err)
		}
	default:
		c.logger.Debug("Ignoring message", "type", msg.Type)
	}
}

// writePump is the only writer of the connection.
func (c *feedConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.pipeline.Events():
			if !ok {
				return
			}
			msg, ok := messageFor(ev)
			if !ok {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Feed write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Ping failed", "err", err)
				return
			}
		case <-ctx.Done():
			deadline := time.Now().Add(writeWait)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.conn.WriteControl(websocket.CloseMessage, msg, deadline) //nolint:errcheck
			return
		}
	}
}
