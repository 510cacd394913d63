package receiver

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/obsidianstack/logpush/internal/record"
	"github.com/obsidianstack/logpush/internal/transport"
	"github.com/obsidianstack/logpush/server/internal/store"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("receiver: record is not a JSON object")

// MissingKeyError reports a record without one of the fixed keys.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("receiver: record missing key %q", e.Key)
}

// decodeBody turns an HTTP body into an Entry, unwrapping the compressed
// envelope when the body is exactly {"log": "<string>"}.
func decodeBody(p *fastjson.Parser, body []byte) (*store.Entry, error) {
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("receiver: parse body: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, ErrNotObject
	}
	logVal := obj.Get("log")
	if obj.Len() != 1 || logVal == nil || logVal.Type() != fastjson.TypeString {
		return decodeValue(v, body)
	}

	compressed, err := base64.StdEncoding.DecodeString(string(logVal.GetStringBytes()))
	if err != nil {
		return nil, fmt.Errorf("receiver: envelope: %w", err)
	}
	return decodeCompressed(p, compressed)
}

// decodeCompressed inflates a zlib payload and decodes the record inside.
func decodeCompressed(p *fastjson.Parser, data []byte) (*store.Entry, error) {
	raw, err := transport.Inflate(data)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	return decodeRecord(p, raw)
}

func decodeRecord(p *fastjson.Parser, data []byte) (*store.Entry, error) {
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("receiver: parse record: %w", err)
	}
	return decodeValue(v, data)
}

// decodeValue extracts the indexed fields of a parsed record. raw is kept
// as the stored record body.
func decodeValue(v *fastjson.Value, raw []byte) (*store.Entry, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, ErrNotObject
	}
	for _, k := range record.Keys {
		if !v.Exists(k) {
			return nil, &MissingKeyError{Key: k}
		}
	}
	return &store.Entry{
		Level:       text(v.Get("level")),
		Application: text(v.Get("application")),
		Environment: text(v.Get("environment")),
		Host:        text(v.Get("host")),
		Message:     text(v.Get("message")),
		RequestID:   text(v.Get("request_id")),
		AppID:       v.GetInt64("app_id"),
		Record:      append([]byte(nil), raw...),
	}, nil
}

// text renders a scalar for indexing: strings unquoted, null as "",
// anything else as its JSON text.
func text(v *fastjson.Value) string {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}
