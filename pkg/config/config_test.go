package config_test

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/sopsgate/pkg/config"
	"github.com/macropower/sopsgate/pkg/rule"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		errs   []error
		errMsg string
		input  string
		want   []string
	}{
		"creation rules": {
			input: `
creation_rules:
  - path_regex: ^secrets/
    encrypted_regex: ^password$
    age: age1qyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqs3290gq
  - encrypted_regex: ^token$
stores:
  yaml:
    indent: 2
`,
			want: []string{
				`path_regex="^secrets/" encrypted_regex="^password$"`,
				`path_regex="" encrypted_regex="^token$"`,
			},
		},
		"empty document": {
			input: "",
			want:  []string{},
		},
		"no creation rules": {
			input: "stores: {}\n",
			want:  []string{},
		},
		"creation rules is not a list": {
			input:  "creation_rules: {path_regex: x}\n",
			errs:   []error{config.ErrInvalidConfig},
			errMsg: "[1:",
		},
		"pattern is not a string": {
			input: `creation_rules:
  - path_regex: ^secrets/
    encrypted_regex: 42
`,
			errs:   []error{config.ErrInvalidConfig},
			errMsg: "[3:",
		},
		"invalid pattern": {
			input: `creation_rules:
  - path_regex: "("
`,
			errs:   []error{config.ErrInvalidConfig, rule.ErrInvalidPattern},
			errMsg: "creation_rules[0]: path_regex",
		},
		"invalid yaml": {
			input: "creation_rules: [\n",
			errs:  []error{config.ErrInvalidConfig},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Parse([]byte(tc.input))
			if len(tc.errs) > 0 {
				for _, wantErr := range tc.errs {
					require.ErrorIs(t, err, wantErr)
				}

				if tc.errMsg != "" {
					assert.Contains(t, err.Error(), tc.errMsg)
				}

				return
			}

			require.NoError(t, err)

			got := []string{}
			for _, r := range cfg.CreationRules {
				got = append(got, r.String())
			}

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_RulesAreCompiled(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`creation_rules:
  - path_regex: ^secrets/
    encrypted_regex: ^password$
`))
	require.NoError(t, err)
	require.Len(t, cfg.CreationRules, 1)

	matched := cfg.CreationRules.Match("secrets/db.yaml")
	require.Len(t, matched, 1)
	assert.True(t, matched[0].MatchField("password"))
	assert.False(t, matched[0].MatchField("user"))
	assert.Empty(t, cfg.CreationRules.Match("public/db.yaml"))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sops.yaml")
		require.NoError(t, os.WriteFile(path, []byte("creation_rules:\n  - path_regex: .*\n"), 0o600))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Len(t, cfg.CreationRules, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(filepath.Join(t.TempDir(), ".sops.yaml"))
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(t.TempDir())
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("invalid file names the path", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".sops.yaml")
		require.NoError(t, os.WriteFile(path, []byte("creation_rules: 1\n"), 0o600))

		_, err := config.Load(path)
		require.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.Contains(t, err.Error(), path)
	})
}

func TestFind(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		got, err := config.Find(dir)
		require.NoError(t, err)

		// Nothing in the temp dir itself; anything found must be above it.
		if got != "" {
			assert.NotEqual(t, dir, filepath.Dir(got))
		}
	})

	t.Run("walks up", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sub := filepath.Join(dir, "x", "y")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		want := filepath.Join(dir, ".sops.yml")
		require.NoError(t, os.WriteFile(want, nil, 0o600))

		got, err := config.Find(sub)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("prefers yaml extension", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".sops.yml"), nil, 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".sops.yaml"), nil, 0o600))

		got, err := config.Find(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, ".sops.yaml"), got)
	})

	t.Run("starts from a file's directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		want := filepath.Join(dir, ".sops.yaml")
		file := filepath.Join(dir, "secrets.yaml")
		require.NoError(t, os.WriteFile(want, nil, 0o600))
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		got, err := config.Find(file)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing start directory", func(t *testing.T) {
		t.Parallel()

		_, err := config.Find(filepath.Join(nested, "missing"))
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestSchema(t *testing.T) {
	t.Parallel()

	data, err := config.Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, config.SchemaURL, schema["$id"])
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "additionalProperties")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "creation_rules")
}
