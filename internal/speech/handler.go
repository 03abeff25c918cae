package speech

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/storyfeed/feed/audio"
)

// maxTextBytes bounds the text of one speech request.
const maxTextBytes = 8 << 10

// Handler answers POST /api/tts with raw PCM.
type Handler struct {
	synth  audio.Synthesizer
	logger *log.Logger
}

// NewHandler serves speech from synth.
func NewHandler(synth audio.Synthesizer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.WithPrefix("speech")
	}
	return &Handler{synth: synth, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		http.Error(w, ErrEmptyText.Error(), http.StatusBadRequest)
		return
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}
	if !ValidVoice(req.Voice) {
		http.Error(w, ErrUnknownVoice.Error(), http.StatusBadRequest)
		return
	}

	clip, err := h.synth.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		code := http.StatusBadGateway
		var sc audio.StatusCoder
		if errors.As(err, &sc) {
			code = sc.StatusCode()
		}
		h.logger.Warn("Synthesis failed", "voice", req.Voice, "status", code, "err", err)
		http.Error(w, "speech synthesis failed", code)
		return
	}

	h.logger.Debug("Synthesized", "voice", req.Voice, "bytes", humanize.IBytes(uint64(len(clip.Data))), "duration", clip.Duration())
	w.Header().Set("Content-Type", "audio/pcm")
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("X-Sample-Rate", strconv.Itoa(clip.Format.SampleRate))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(clip.Data)
}
