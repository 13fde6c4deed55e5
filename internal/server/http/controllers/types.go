package controllers

import "github.com/rzbill/dispatch/internal/dispatcher"

// publishReq is the body of POST /v1/publish. Payload is base64 in JSON.
type publishReq struct {
	Key     string            `json:"key"`
	Payload []byte            `json:"payload"`
	Headers map[string]string `json:"headers"`
}

type publishResp struct {
	ID          string `json:"id"`
	PublishedMs int64  `json:"published_ms"`
}

type unsubscribeReq struct {
	Key string `json:"key"`
}

// eventJSON is the data of one SSE event.
type eventJSON struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	PublishedMs int64             `json:"published_ms"`
}

type keyStatsJSON struct {
	Key string `json:"key"`
	dispatcher.KeyStats
}
