package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/segmentio/encoding/json"

	"github.com/obsidianstack/logpush/internal/record"
)

// maxInflated caps decompressed payloads read by Inflate.
const maxInflated = 8 << 20

// httpEnvelope is the compressed HTTP body: {"log": "<base64>"}.
type httpEnvelope struct {
	Log string `json:"log"`
}

// EncodeRecord serializes rec as JSON without HTML escaping.
func EncodeRecord(rec record.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Deflate compresses data with zlib framing (RFC 1950).
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

// Inflate reverses Deflate.
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("inflate: payload exceeds %d bytes", maxInflated)
	}
	return out, nil
}

// WrapHTTP builds the compressed HTTP body for a record's JSON.
func WrapHTTP(recordJSON []byte) ([]byte, error) {
	compressed, err := Deflate(recordJSON)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(httpEnvelope{Log: base64.StdEncoding.EncodeToString(compressed)})
	if err != nil {
		return nil, fmt.Errorf("wrap: %w", err)
	}
	return body, nil
}

// UnwrapHTTP reverses WrapHTTP, returning the record JSON.
func UnwrapHTTP(body []byte) ([]byte, error) {
	var env httpEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unwrap: %w", err)
	}
	if env.Log == "" {
		return nil, fmt.Errorf("unwrap: missing log field")
	}
	compressed, err := base64.StdEncoding.DecodeString(env.Log)
	if err != nil {
		return nil, fmt.Errorf("unwrap: %w", err)
	}
	return Inflate(compressed)
}
