package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pingup/internal/pkg/logx"
)

// streamKeepAlive is the interval between SSE comment lines that keep proxies from timing out.
const streamKeepAlive = 25 * time.Second

// Stream is a Server-Sent Events Sink bound to one HTTP response.
type Stream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	out    *outbox
	logger zerolog.Logger
}

// NewStream writes the SSE response headers and returns the sink.
func NewStream(w http.ResponseWriter, userID string) (*Stream, error) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("response does not support streaming: %w", err)
	}

	return &Stream{
		w:   w,
		rc:  rc,
		out: newOutbox(),
		logger: logx.Logger().With().
			Str("component", "push").
			Str("transport", "sse").
			Str("user_id", userID).
			Logger(),
	}, nil
}

// Deliver queues frame for Run.
func (s *Stream) Deliver(ctx context.Context, frame Frame) error {
	return s.out.deliver(ctx, frame)
}

// Close stops Run. The handler returning ends the HTTP response.
func (s *Stream) Close(reason string) {
	if s.out.close(reason) {
		s.logger.Debug().Str("reason", reason).Msg("Stream close requested.")
	}
}

// Run writes queued frames until ctx ends, the stream is closed or a write fails.
func (s *Stream) Run(ctx context.Context) {
	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	defer s.Close(CloseReasonClosed)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.out.done:
			return

		case frame := <-s.out.frames:
			if err := s.writeEvent(frame); err != nil {
				s.logger.Warn().Err(err).Msg("Error writing event")
				return
			}

		case <-ticker.C:
			if err := s.writeRaw(": ping\n\n"); err != nil {
				s.logger.Debug().Err(err).Msg("Error writing keep-alive")
				return
			}
		}
	}
}

func (s *Stream) writeEvent(frame Frame) error {
	return s.writeRaw(fmt.Sprintf("event: %s\ndata: %s\n\n", frame.Type, frame.Data))
}

func (s *Stream) writeRaw(chunk string) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := s.w.Write([]byte(chunk)); err != nil {
		return err
	}
	return s.rc.Flush()
}
