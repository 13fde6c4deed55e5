package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
)

// sseSink writes each message as a Server-Sent Event:
//
//	id: <message id>
//	data: <eventJSON>
type sseSink struct {
	w     http.ResponseWriter
	wrote bool
}

func (s *sseSink) Send(m dispatchsvc.Message) error {
	b, err := json.Marshal(eventJSON{
		ID:          m.ID.String(),
		Key:         m.Key,
		Payload:     m.Payload,
		Headers:     m.Headers,
		PublishedMs: m.PublishedMs,
	})
	if err != nil {
		return err
	}
	s.wrote = true
	_, err = fmt.Fprintf(s.w, "id: %s\ndata: %s\n\n", m.ID.String(), b)
	return err
}

func (s *sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
