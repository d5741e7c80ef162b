package yaml

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/token"
)

func NewPathBuilder() *yaml.PathBuilder {
	// Use the goccy/go-yaml PathBuilder to create a new YAMLPath.
	return &yaml.PathBuilder{}
}

// Error represents a YAML error. It includes the original error, and
// optionally the [*yaml.Path] or [*token.Token] where the error occurred.
type Error struct {
	Err   error
	Path  *yaml.Path
	Token *token.Token
}

func (e Error) Error() string {
	if e.Err == nil {
		return ""
	}

	if e.Token != nil {
		return fmt.Sprintf("[%d:%d] %v", e.Token.Position.Line, e.Token.Position.Column, e.Err)
	}

	if e.Path != nil {
		return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
	}

	return e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// Locate sets the error's token from its path within source, so that the
// error message points at a line and column. Errors without a path, or with
// a path that cannot be found in source, are returned unchanged.
func Locate(err error, source []byte) error {
	yamlErr, ok := err.(*Error) //nolint:errorlint // Only locate top-level errors.
	if !ok || yamlErr.Path == nil || yamlErr.Token != nil {
		return err
	}

	tk, tkErr := getTokenFromPath(source, yamlErr.Path)
	if tkErr != nil {
		return err
	}

	yamlErr.Token = tk

	return yamlErr
}

func getTokenFromPath(source []byte, path *yaml.Path) (*token.Token, error) {
	file, err := parser.ParseBytes(source, 0)
	if err != nil {
		return nil, fmt.Errorf("parse source bytes into ast.File: %w", err)
	}

	node, err := path.FilterFile(file)
	if err != nil {
		return nil, fmt.Errorf("filter from ast.File by YAMLPath: %w", err)
	}

	// path.FilterFile returns the VALUE node, but errors read better when
	// they point to the KEY.
	keyToken := findKeyToken(file, path)
	if keyToken != nil {
		return keyToken, nil
	}

	return node.GetToken(), nil
}

// findKeyToken attempts to find the KEY token for the given path by looking
// in the parent node.
func findKeyToken(file *ast.File, path *yaml.Path) *token.Token {
	pathStr := path.String()

	lastDot := strings.LastIndex(pathStr, ".")
	lastBracket := strings.LastIndex(pathStr, "[")

	if lastDot <= lastBracket {
		// Root path or array index, no key to find.
		return nil
	}

	parentPath, err := yaml.PathString(pathStr[:lastDot])
	if err != nil {
		return nil
	}

	parentNode, err := parentPath.FilterFile(file)
	if err != nil {
		return nil
	}

	mapping, ok := parentNode.(*ast.MappingNode)
	if !ok {
		return nil
	}

	lastSegment := pathStr[lastDot+1:]
	for _, val := range mapping.Values {
		if val.Key.String() == lastSegment {
			return val.Key.GetToken()
		}
	}

	return nil
}
