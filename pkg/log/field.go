package log

import (
	"time"
)

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field from any value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

func Str(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field             { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field         { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field       { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field           { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field     { return Field{Key: key, Value: value} }
func Duration(key string, d time.Duration) Field  { return Field{Key: key, Value: d.String()} }
func Component(name string) Field                 { return Field{Key: ComponentKey, Value: name} }

// Err attaches an error under the "error" key. A nil error renders as null.
func Err(err error) Field {
	if err == nil {
		return Field{Key: ErrorKey, Value: nil}
	}
	return Field{Key: ErrorKey, Value: err.Error()}
}

// Well-known field keys.
const (
	ComponentKey = "component"
	ErrorKey     = "error"
)
