// Package filter compiles CEL expressions that select which messages a
// subscriber receives.
//
// Expressions see these variables:
//
//	key           string               message key
//	id            string               message id
//	text          string               payload as text
//	json          dyn                  payload parsed as JSON (null if not JSON)
//	size          int                  payload length in bytes
//	headers       map(string, string)  message headers
//	published_ms  int                  publish time, unix ms
//	now_ms        int                  evaluation time, unix ms
//
// Example: `headers["type"] == "order" && json.amount > 100.0`.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Input is the message view a Filter evaluates.
type Input struct {
	Key         string
	ID          string
	Payload     []byte
	Headers     map[string]string
	PublishedMs int64
}

// Filter is a compiled expression. The zero value matches everything.
type Filter struct {
	expr string
	prog cel.Program
}

var env = mustEnv()

func mustEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("key", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("size", cel.IntType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("published_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		panic(fmt.Sprintf("filter: cel env: %v", err))
	}
	return e
}

// Compile parses and type-checks expr. An empty expression yields a Filter
// that matches everything.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter: %w", iss.Err())
	}
	if t := ast.OutputType().String(); t != "bool" && t != "dyn" {
		return Filter{}, fmt.Errorf("filter: expression must be boolean, got %s", t)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: %w", err)
	}
	return Filter{expr: expr, prog: prog}, nil
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.prog != nil }

func (f Filter) String() string { return f.expr }

// Match evaluates the filter. Evaluation errors and non-boolean results do
// not match.
func (f Filter) Match(in Input) bool {
	if f.prog == nil {
		return true
	}
	var doc any
	if len(in.Payload) > 0 {
		_ = json.Unmarshal(in.Payload, &doc)
	}
	headers := in.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"key":          in.Key,
		"id":           in.ID,
		"text":         string(in.Payload),
		"json":         doc,
		"size":         int64(len(in.Payload)),
		"headers":      headers,
		"published_ms": in.PublishedMs,
		"now_ms":       time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
