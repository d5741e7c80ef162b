// Package transform base64-normalizes the sensitive values of decoded documents.
//
// A value is sensitive when any mapping key on its path matches a rule's
// field pattern. Sensitivity is inherited by everything below that key:
// nested mappings, sequences and their scalars. Only string scalars are
// rewritten, and only when they are not already valid base64, which makes
// every transform idempotent.
package transform

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/macropower/sopsgate/pkg/yaml"
)

// FieldMatcher decides whether a mapping key marks its value as sensitive.
type FieldMatcher interface {
	MatchField(key string) bool
}

// Apply transforms v once per matcher, feeding each result into the next.
// A value that is sensitive under any matcher ends up normalized.
func Apply[S ~[]M, M FieldMatcher](matchers S, v any) any {
	for _, m := range matchers {
		v = Value(m, v, false)
	}

	return v
}

// Value returns a copy of v in which every string under a sensitive key is
// normalized with [Normalize]. The sensitive argument carries sensitivity
// inherited from ancestors. The input is never modified.
func Value(m FieldMatcher, v any, sensitive bool) any {
	switch node := v.(type) {
	case yaml.MapSlice:
		out := make(yaml.MapSlice, 0, len(node))
		for _, item := range node {
			out = append(out, yaml.MapItem{
				Key:   item.Key,
				Value: Value(m, item.Value, sensitive || m.MatchField(keyString(item.Key))),
			})
		}

		return out

	case map[string]any:
		// Unordered documents, e.g. from encoding/json. DecodeAll never yields these.
		out := make(map[string]any, len(node))
		for key, child := range node {
			out[key] = Value(m, child, sensitive || m.MatchField(key))
		}

		return out

	case []any:
		// Sequences pass sensitivity through unchanged.
		out := make([]any, 0, len(node))
		for _, child := range node {
			out = append(out, Value(m, child, sensitive))
		}

		return out

	case string:
		if sensitive {
			return Normalize(node)
		}
	}

	return v
}

// Normalize returns s unchanged if it is canonical, padded, standard base64.
// Otherwise it returns the base64 encoding of s.
//
// Decoding is strict: padding must be present, trailing bits must be zero, and
// line breaks are not accepted (the standard decoder would skip them).
func Normalize(s string) string {
	if IsBase64(s) {
		return s
	}

	return base64.StdEncoding.EncodeToString([]byte(s))
}

// IsBase64 reports whether s is already canonical base64.
func IsBase64(s string) bool {
	if strings.ContainsAny(s, "\r\n") {
		return false
	}

	_, err := base64.StdEncoding.Strict().DecodeString(s)

	return err == nil
}

func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}

	return fmt.Sprint(key)
}
