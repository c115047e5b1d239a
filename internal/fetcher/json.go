package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// jsonFallbackFields are tried for JSON objects when no column is named.
var jsonFallbackFields = []string{"handle", "username", "url", "profile_url"}

// jsonValues decodes a top-level JSON array element by element. Elements
// are handle strings or objects carrying one of fields; anything else is
// skipped.
func jsonValues(ctx context.Context, r io.Reader, fields []string) ([]string, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read json listing")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("fetcher: json listing must be an array, got %v", tok)
	}

	var out []string
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fetcher: read json listing")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, eris.Wrap(err, "fetcher: decode json listing element")
		}
		if v := jsonValue(raw, fields); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func jsonValue(raw json.RawMessage, fields []string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, field := range fields {
		if v, ok := obj[field].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
