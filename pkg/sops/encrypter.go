// Package sops prepares files for encryption and hands them to sops.
//
// For every file, an [Encrypter] selects the creation rules whose path pattern
// matches, base64-normalizes the values of sensitive fields, stages the result
// next to the original, encrypts the staged copy in place with sops, and then
// renames it over the original. Files that no rule matches, that cannot be
// parsed, or that are already encrypted are left untouched.
package sops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/sopsgate/pkg/diff"
	"github.com/macropower/sopsgate/pkg/execs"
	"github.com/macropower/sopsgate/pkg/log"
	"github.com/macropower/sopsgate/pkg/rule"
	"github.com/macropower/sopsgate/pkg/transform"
	"github.com/macropower/sopsgate/pkg/yaml"
)

const (
	// DefaultTempPrefix is prepended to the base name of staged files.
	DefaultTempPrefix = "base64-encoded-"

	// MarkerKey is the top-level key sops adds to every file it encrypts.
	MarkerKey = "sops"

	// DefaultCommand is the sops executable.
	DefaultCommand = "sops"
)

// ErrEncrypt is returned when sops fails to encrypt a staged file.
var ErrEncrypt = errors.New("encrypt")

// EncrypterOpt configures an [Encrypter].
type EncrypterOpt func(*Encrypter)

// WithCommand sets the sops command. Its arguments are placed before the
// encryption arguments.
func WithCommand(cmd execs.Command) EncrypterOpt {
	return func(e *Encrypter) {
		e.cmd = cmd
	}
}

// WithTempPrefix sets the prefix of staged file names.
func WithTempPrefix(prefix string) EncrypterOpt {
	return func(e *Encrypter) {
		e.tempPrefix = prefix
	}
}

// WithFilenameOverride makes sops match its own creation rules against the
// original file name instead of the staged one.
func WithFilenameOverride(enabled bool) EncrypterOpt {
	return func(e *Encrypter) {
		e.filenameOverride = enabled
	}
}

// WithBaseDir makes creation rules match file paths relative to dir, which is
// normally the directory holding the sops configuration. Without it, paths are
// matched as given.
func WithBaseDir(dir string) EncrypterOpt {
	return func(e *Encrypter) {
		e.baseDir = dir
	}
}

// WithDryRun makes the [Encrypter] write a diff of the normalization to w
// instead of staging and encrypting files.
func WithDryRun(w io.Writer, r *diff.Renderer) EncrypterOpt {
	return func(e *Encrypter) {
		e.dryRun = w
		e.renderer = r
	}
}

// Encrypter normalizes and encrypts files according to a set of creation rules.
// Files are processed one at a time; an Encrypter is not meant for concurrent use.
type Encrypter struct {
	tracer           trace.Tracer
	dryRun           io.Writer
	renderer         *diff.Renderer
	rules            rule.Rules
	baseDir          string
	tempPrefix       string
	cmd              execs.Command
	filenameOverride bool
}

// NewEncrypter creates a new [Encrypter]. The rules must be compiled.
func NewEncrypter(rules rule.Rules, opts ...EncrypterOpt) *Encrypter {
	e := &Encrypter{
		tracer:     otel.Tracer("sops"),
		rules:      rules,
		tempPrefix: DefaultTempPrefix,
		cmd:        execs.NewCommand(os.Environ(), DefaultCommand),
	}
	e.cmd.AddEnvFrom(execs.EnvFromSource{CallerRef: &execs.CallerRef{Pattern: ".*"}})

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// EncryptFiles calls [Encrypter.Encrypt] for each path, in order. It returns
// the paths that were modified. Processing stops at the first error, in which
// case the paths modified before it are returned along with the error.
func (e *Encrypter) EncryptFiles(ctx context.Context, paths []string) ([]string, error) {
	var modified []string

	for _, path := range paths {
		ok, err := e.Encrypt(ctx, path)
		if err != nil {
			return modified, err
		}

		if ok {
			modified = append(modified, path)
		}
	}

	return modified, nil
}

// Encrypt normalizes and encrypts the file at path, if any rule requires it.
// It reports whether the file was modified (or, in dry-run mode, whether it
// would be).
//
// Files that do not need encryption return false and no error. Errors are
// returned for filesystem failures and sops failures. When sops fails, the
// staged file is left in place for inspection.
func (e *Encrypter) Encrypt(ctx context.Context, path string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "encrypt", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	ok, err := e.encrypt(ctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(attribute.Bool("modified", ok))

	return ok, err
}

func (e *Encrypter) encrypt(ctx context.Context, path string) (bool, error) {
	logger := log.WithContext(ctx).With(slog.String("path", path))

	name := filepath.Base(path)
	if strings.HasPrefix(name, e.tempPrefix) {
		logger.DebugContext(ctx, "skip staged file")

		return false, nil
	}

	matchPath := e.rulePath(path)

	rules := e.rules.Match(matchPath)
	if len(rules) == 0 {
		logger.DebugContext(ctx, "no matching creation rules", slog.String("match", matchPath))

		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	logger.DebugContext(ctx, "read file",
		slog.String("size", humanize.Bytes(uint64(len(data)))),
		slog.Int("rules", len(rules)),
	)

	docs, err := yaml.DecodeAll(data)
	if err != nil {
		logger.WarnContext(ctx, "skip file that is not valid yaml", slog.Any("error", err))

		return false, nil
	}

	if !hasContent(docs) {
		logger.DebugContext(ctx, "skip file without content")

		return false, nil
	}

	if isEncrypted(docs) {
		logger.DebugContext(ctx, "skip encrypted file")

		return false, nil
	}

	for i, doc := range docs {
		docs[i] = transform.Apply(rules, doc)
	}

	out, err := yaml.EncodeAll(docs, yaml.WithJSON(isJSON(path)))
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", path, err)
	}

	if e.dryRun != nil {
		return true, e.writeDiff(path, data, out)
	}

	tmp := filepath.Join(filepath.Dir(path), e.tempPrefix+name)

	err = stage(tmp, out, info.Mode().Perm())
	if err != nil {
		return false, err
	}

	args := []string{"--encrypt", "--in-place"}
	if e.filenameOverride {
		args = append(args, "--filename-override", path)
	}

	args = append(args, tmp)

	result, err := execs.NewExecutor(e.cmd, args...).Exec(ctx, "")
	if err != nil {
		if result != nil && strings.TrimSpace(result.Stderr) != "" {
			return false, fmt.Errorf("%w %s: %w: %s", ErrEncrypt, path, err, strings.TrimSpace(result.Stderr))
		}

		return false, fmt.Errorf("%w %s: %w", ErrEncrypt, path, err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return false, fmt.Errorf("replace %s: %w", path, err)
	}

	logger.InfoContext(ctx, "encrypted file")

	return true, nil
}

func (e *Encrypter) writeDiff(path string, before, after []byte) error {
	if bytes.Equal(before, after) {
		return nil
	}

	text := diff.Unified(filepath.ToSlash(path), before, after)

	if e.renderer == nil {
		_, err := io.WriteString(e.dryRun, text)
		if err != nil {
			return fmt.Errorf("write diff: %w", err)
		}

		return nil
	}

	err := e.renderer.Write(e.dryRun, text)
	if err != nil {
		return fmt.Errorf("write diff: %w", err)
	}

	return nil
}

// rulePath returns the path that creation rules are matched against.
func (e *Encrypter) rulePath(path string) string {
	if e.baseDir == "" {
		return path
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	base, err := filepath.Abs(e.baseDir)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return path
	}

	return rel
}

// stage writes data to path with the given permissions, replacing any file
// left behind by an earlier failed run.
func stage(path string, data []byte, perm os.FileMode) error {
	err := os.WriteFile(path, data, perm)
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}

	err = os.Chmod(path, perm)
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}

	return nil
}

// hasContent reports whether any document is a non-empty mapping or sequence.
func hasContent(docs []any) bool {
	for _, doc := range docs {
		switch node := doc.(type) {
		case yaml.MapSlice:
			if len(node) > 0 {
				return true
			}
		case []any:
			if len(node) > 0 {
				return true
			}
		}
	}

	return false
}

// isEncrypted reports whether any mapping document carries the sops marker.
func isEncrypted(docs []any) bool {
	for _, doc := range docs {
		m, ok := doc.(yaml.MapSlice)
		if !ok {
			continue
		}

		for _, item := range m {
			if key, ok := item.Key.(string); ok && key == MarkerKey {
				return true
			}
		}
	}

	return false
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
