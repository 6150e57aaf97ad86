package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
)

type sseWriter struct {
	res     *echo.Response
	started bool
}

func newSSEWriter(res *echo.Response) *sseWriter {
	return &sseWriter{res: res}
}

// Write sends one event and flushes it to the client.
func (w *sseWriter) Write(ev relay.Event) error {
	if !w.started {
		h := w.res.Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.res.WriteHeader(http.StatusOK)
		w.started = true
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}
