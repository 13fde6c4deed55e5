package filter

import (
	"testing"
)

func TestEmptyMatchesAll(t *testing.T) {
	f, err := Compile("  ")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Enabled() || !f.Match(Input{}) {
		t.Fatalf("empty filter should match everything")
	}
}

func TestMatch(t *testing.T) {
	msg := Input{
		Key:         "orders",
		ID:          "abc",
		Payload:     []byte(`{"amount": 150, "currency": "EUR"}`),
		Headers:     map[string]string{"type": "order"},
		PublishedMs: 1000,
	}
	cases := []struct {
		expr string
		want bool
	}{
		{`key == "orders"`, true},
		{`headers["type"] == "order"`, true},
		{`json.amount > 100.0`, true},
		{`json.amount > 200.0`, false},
		{`json.currency == "EUR" && size > 10`, true},
		{`text.contains("EUR")`, true},
		{`published_ms < now_ms`, true},
		{`"missing" in headers`, false},
		// Missing field is an evaluation error, which never matches.
		{`json.nope == 1`, false},
	}
	for _, tc := range cases {
		f, err := Compile(tc.expr)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expr, err)
		}
		if got := f.Match(msg); got != tc.want {
			t.Fatalf("%q = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestNonJSONPayload(t *testing.T) {
	f, err := Compile(`text == "plain"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !f.Match(Input{Payload: []byte("plain")}) {
		t.Fatalf("expected match on text")
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{`key ==`, `unknown_var == 1`, `size + 1`} {
		if _, err := Compile(expr); err == nil {
			t.Fatalf("expected error for %q", expr)
		}
	}
}
