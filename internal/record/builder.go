package record

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
)

// Date layouts used by the collector schema.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Context keys lifted into dedicated record columns.
const (
	FieldUserID    = "user_id"
	FieldRequestID = "request_id"
)

// Builder turns an optional ErrorInfo and a context map into a LogRecord.
type Builder struct {
	appID    int64
	now      func() time.Time         // injectable for deterministic tests
	hostname func() (string, error) // injectable for deterministic tests
}

// NewBuilder returns a Builder stamping records with appID.
func NewBuilder(appID int64) *Builder {
	return &Builder{appID: appID, now: time.Now, hostname: os.Hostname}
}

// WithClock returns a copy of b reading time from now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	c := *b
	c.now = now
	return &c
}

// WithHostname returns a copy of b reading the host name from hostname.
func (b *Builder) WithHostname(hostname func() (string, error)) *Builder {
	c := *b
	c.hostname = hostname
	return &c
}

// Build assembles a record. info may be nil; fields may be nil.
func (b *Builder) Build(info *ErrorInfo, fields map[string]any, level, application, environment string) LogRecord {
	now := b.now()
	stamp := now.Format(DateTimeLayout)

	host, err := b.hostname()
	if err != nil {
		host = ""
	}

	rec := LogRecord{
		LogDate:     now.Format(DateLayout),
		Timestamp:   stamp,
		Level:       level,
		Application: application,
		Host:        host,
		UserID:      sanitize(fields[FieldUserID]),
		RequestID:   sanitize(fields[FieldRequestID]),
		Context:     EncodeContext(fields),
		Environment: environment,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
		AppID:       b.appID,
	}
	if info != nil {
		msg, trace, file, line := info.Message, info.Trace, info.File, info.Line
		rec.Message = &msg
		rec.Exception = &trace
		rec.FileName = &file
		rec.LineNumber = &line
	}
	if !encodable(rec.UserID) {
		rec.UserID = fmt.Sprint(rec.UserID)
	}
	if !encodable(rec.RequestID) {
		rec.RequestID = fmt.Sprint(rec.RequestID)
	}
	return rec
}

// EncodeContext renders fields as a JSON object with HTML and Unicode left
// unescaped. A nil map encodes as {}. Self-referencing or overly deep values
// are cut at the offending node with CyclePlaceholder or DepthPlaceholder.
// Values the encoder rejects (funcs, channels, NaN floats) are replaced by
// their fmt rendering; the result is always a valid JSON object.
func EncodeContext(fields map[string]any) string {
	if fields == nil {
		return "{}"
	}
	fields, ok := sanitize(fields).(map[string]any)
	if !ok {
		return "{}"
	}
	if s, err := encode(fields); err == nil {
		return s
	}

	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if encodable(v) {
			clean[k] = v
		} else {
			clean[k] = fmt.Sprint(v)
		}
	}
	s, err := encode(clean)
	if err != nil {
		return "{}"
	}
	return s
}

func encodable(v any) bool {
	_, err := encode(v)
	return err == nil
}

func encode(v any) (s string, err error) {
	// A panicking MarshalJSON must not escape into the caller.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("record: encode: %v", r)
		}
	}()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
