package dispatchv1

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestDeliveryStructBinaryPayload(t *testing.T) {
	in := Delivery{
		ID:          "0000018f2a0b3c4d0000000000000001",
		Key:         "orders",
		Payload:     []byte{0x00, 0xff, 0x10},
		Headers:     map[string]string{"trace": "abc"},
		PublishedMs: 1717000000123,
	}
	out, err := DeliveryFrom(in.ToStruct())
	if err != nil {
		t.Fatalf("DeliveryFrom: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishRequestRejectsBadBase64(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":     structpb.NewStringValue("k"),
		"payload": structpb.NewStringValue("!!not-base64"),
	}}
	if _, err := PublishRequestFrom(s); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestPublishRequestEmptyPayload(t *testing.T) {
	got, err := PublishRequestFrom(PublishRequest{Key: "k"}.ToStruct())
	if err != nil {
		t.Fatalf("PublishRequestFrom: %v", err)
	}
	want := PublishRequest{Key: "k", Headers: map[string]string{}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestStatsResponseKeyFields(t *testing.T) {
	in := StatsResponse{Keys: 3, Pushed: 10, Key: "a", KeyFound: true, KeyQueued: 2, KeySubscribed: true}
	if diff := cmp.Diff(in, StatsResponseFrom(in.ToStruct())); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
