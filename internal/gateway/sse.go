package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

// SSESink writes events as text/event-stream "data: <json>\n\n" frames.
type SSESink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSESink sends the stream headers with an implicit 200. It fails with
// http.ErrNotSupported, before anything is written, when w cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &SSESink{
		w:  w,
		rc: http.NewResponseController(w),
	}

	if err := s.rc.Flush(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SSESink) Send(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.rc.Flush()
}
