package yaml

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
)

type (
	// MapSlice is an ordered mapping. It is the mapping node type of decoded documents.
	MapSlice = yaml.MapSlice
	// MapItem is a single key/value pair of a [MapSlice].
	MapItem = yaml.MapItem
)

// Unmarshal decodes the first document of data into v. Struct fields are
// matched by their json tags. An empty document leaves v unchanged.
func Unmarshal(data []byte, v any) error {
	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return wrapError(err)
	}

	if len(file.Docs) == 0 || file.Docs[0] == nil || file.Docs[0].Body == nil {
		return nil
	}

	return wrapError(yaml.NodeToValue(file.Docs[0].Body, v, yaml.AllowDuplicateMapKey()))
}

// DecodeAll decodes every document in a YAML (or JSON) stream.
//
// Mappings are decoded as [MapSlice] so that key order survives a round trip,
// sequences as []any, and scalars as their native Go types. A document with
// no content decodes as nil. An empty stream returns no documents.
func DecodeAll(data []byte) ([]any, error) {
	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return nil, wrapError(err)
	}

	docs := make([]any, 0, len(file.Docs))

	for i, doc := range file.Docs {
		if doc == nil || doc.Body == nil {
			docs = append(docs, nil)

			continue
		}

		var v any

		err := yaml.NodeToValue(doc.Body, &v, yaml.UseOrderedMap())
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, wrapError(err))
		}

		docs = append(docs, v)
	}

	return docs, nil
}

// wrapError converts goccy errors into [*Error], preserving the error token.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return &Error{
			Err:   errors.New(yamlErr.GetMessage()),
			Token: yamlErr.GetToken(),
		}
	}

	//nolint:wrapcheck // Return the original error if it's not a [yaml.Error].
	return err
}
