package dispatchv1

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// PublishRequest: {key, payload (base64), headers}
type PublishRequest struct {
	Key     string
	Payload []byte
	Headers map[string]string
}

// PublishResponse: {id, published_ms}
type PublishResponse struct {
	ID          string
	PublishedMs int64
}

// SubscribeRequest: {key, filter, limit}
type SubscribeRequest struct {
	Key    string
	Filter string
	Limit  int
}

// Delivery is one streamed message: {id, key, payload (base64), headers, published_ms}
type Delivery struct {
	ID          string
	Key         string
	Payload     []byte
	Headers     map[string]string
	PublishedMs int64
}

// StatsRequest: {key} (optional)
type StatsRequest struct {
	Key string
}

// StatsResponse carries engine-wide counters and, when a key was asked for,
// that key's state.
type StatsResponse struct {
	Keys       int64
	Subscribed int64
	Queued     int64
	Pushed     int64
	Rejected   int64
	Delivered  int64
	Panics     int64
	Sweeps     int64
	Evicted    int64

	Key           string
	KeyFound      bool
	KeyQueued     int64
	KeySubscribed bool
}

func headersToValue(h map[string]string) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(h))
	for k, v := range h {
		fields[k] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func headersFrom(s *structpb.Struct, name string) map[string]string {
	v, ok := s.GetFields()[name]
	if !ok || v.GetStructValue() == nil {
		return nil
	}
	out := make(map[string]string, len(v.GetStructValue().GetFields()))
	for k, f := range v.GetStructValue().GetFields() {
		out[k] = f.GetStringValue()
	}
	return out
}

func str(s *structpb.Struct, name string) string { return s.GetFields()[name].GetStringValue() }

func num(s *structpb.Struct, name string) int64 { return int64(s.GetFields()[name].GetNumberValue()) }

func boolean(s *structpb.Struct, name string) bool { return s.GetFields()[name].GetBoolValue() }

func bytesFrom(s *structpb.Struct, name string) ([]byte, error) {
	raw := str(s, name)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", name, err)
	}
	return b, nil
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

func (r PublishRequest) ToStruct() *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		"key":     structpb.NewStringValue(r.Key),
		"payload": structpb.NewStringValue(base64.StdEncoding.EncodeToString(r.Payload)),
		"headers": headersToValue(r.Headers),
	})
}

func PublishRequestFrom(s *structpb.Struct) (PublishRequest, error) {
	payload, err := bytesFrom(s, "payload")
	if err != nil {
		return PublishRequest{}, err
	}
	return PublishRequest{Key: str(s, "key"), Payload: payload, Headers: headersFrom(s, "headers")}, nil
}

func (r PublishResponse) ToStruct() *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		"id":           structpb.NewStringValue(r.ID),
		"published_ms": structpb.NewNumberValue(float64(r.PublishedMs)),
	})
}

func PublishResponseFrom(s *structpb.Struct) PublishResponse {
	return PublishResponse{ID: str(s, "id"), PublishedMs: num(s, "published_ms")}
}

func (r SubscribeRequest) ToStruct() *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		"key":    structpb.NewStringValue(r.Key),
		"filter": structpb.NewStringValue(r.Filter),
		"limit":  structpb.NewNumberValue(float64(r.Limit)),
	})
}

func SubscribeRequestFrom(s *structpb.Struct) SubscribeRequest {
	return SubscribeRequest{Key: str(s, "key"), Filter: str(s, "filter"), Limit: int(num(s, "limit"))}
}

func (d Delivery) ToStruct() *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		"id":           structpb.NewStringValue(d.ID),
		"key":          structpb.NewStringValue(d.Key),
		"payload":      structpb.NewStringValue(base64.StdEncoding.EncodeToString(d.Payload)),
		"headers":      headersToValue(d.Headers),
		"published_ms": structpb.NewNumberValue(float64(d.PublishedMs)),
	})
}

func DeliveryFrom(s *structpb.Struct) (Delivery, error) {
	payload, err := bytesFrom(s, "payload")
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{
		ID:          str(s, "id"),
		Key:         str(s, "key"),
		Payload:     payload,
		Headers:     headersFrom(s, "headers"),
		PublishedMs: num(s, "published_ms"),
	}, nil
}

func (r StatsRequest) ToStruct() *structpb.Struct {
	return newStruct(map[string]*structpb.Value{"key": structpb.NewStringValue(r.Key)})
}

func StatsRequestFrom(s *structpb.Struct) StatsRequest { return StatsRequest{Key: str(s, "key")} }

func (r StatsResponse) ToStruct() *structpb.Struct {
	n := func(v int64) *structpb.Value { return structpb.NewNumberValue(float64(v)) }
	return newStruct(map[string]*structpb.Value{
		"keys":           n(r.Keys),
		"subscribed":     n(r.Subscribed),
		"queued":         n(r.Queued),
		"pushed":         n(r.Pushed),
		"rejected":       n(r.Rejected),
		"delivered":      n(r.Delivered),
		"panics":         n(r.Panics),
		"sweeps":         n(r.Sweeps),
		"evicted":        n(r.Evicted),
		"key":            structpb.NewStringValue(r.Key),
		"key_found":      structpb.NewBoolValue(r.KeyFound),
		"key_queued":     n(r.KeyQueued),
		"key_subscribed": structpb.NewBoolValue(r.KeySubscribed),
	})
}

func StatsResponseFrom(s *structpb.Struct) StatsResponse {
	return StatsResponse{
		Keys:          num(s, "keys"),
		Subscribed:    num(s, "subscribed"),
		Queued:        num(s, "queued"),
		Pushed:        num(s, "pushed"),
		Rejected:      num(s, "rejected"),
		Delivered:     num(s, "delivered"),
		Panics:        num(s, "panics"),
		Sweeps:        num(s, "sweeps"),
		Evicted:       num(s, "evicted"),
		Key:           str(s, "key"),
		KeyFound:      boolean(s, "key_found"),
		KeyQueued:     num(s, "key_queued"),
		KeySubscribed: boolean(s, "key_subscribed"),
	}
}
