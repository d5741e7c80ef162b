package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// ErrMultipleJSONDocuments is returned when more than one document is encoded as JSON.
var ErrMultipleJSONDocuments = errors.New("json output supports a single document")

// DefaultEncoderOptions are the options used for all YAML output.
var DefaultEncoderOptions = []yaml.EncodeOption{
	yaml.Indent(2),
	yaml.IndentSequence(true),
	yaml.UseLiteralStyleIfMultiline(true),
}

type Encoder struct {
	e *yaml.Encoder
}

func NewEncoder(w io.Writer, opts ...yaml.EncodeOption) *Encoder {
	if len(opts) == 0 {
		opts = DefaultEncoderOptions
	}

	return &Encoder{
		e: yaml.NewEncoder(w, opts...),
	}
}

func (e *Encoder) Encode(v any) error {
	return e.e.Encode(v) //nolint:wrapcheck // Return the original error.
}

func (e *Encoder) Close() error {
	return e.e.Close() //nolint:wrapcheck // Return the original error.
}

// EncodeOpt configures [EncodeAll].
type EncodeOpt func(*encodeOptions)

type encodeOptions struct {
	json bool
}

// WithJSON encodes the document as JSON instead of YAML.
func WithJSON(json bool) EncodeOpt {
	return func(o *encodeOptions) {
		o.json = json
	}
}

// EncodeAll encodes documents as a YAML stream. Documents after the first are
// preceded by a "---" separator.
func EncodeAll(docs []any, opts ...EncodeOpt) ([]byte, error) {
	options := &encodeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	b := &bytes.Buffer{}

	encOpts := DefaultEncoderOptions
	if options.json {
		if len(docs) > 1 {
			return nil, ErrMultipleJSONDocuments
		}

		encOpts = []yaml.EncodeOption{yaml.JSON()}
	}

	enc := NewEncoder(b, encOpts...)
	for i, doc := range docs {
		err := enc.Encode(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
	}

	err := enc.Close()
	if err != nil {
		return nil, fmt.Errorf("close encoder: %w", err)
	}

	return b.Bytes(), nil
}
