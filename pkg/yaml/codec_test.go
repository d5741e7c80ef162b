package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/sopsgate/pkg/yaml"
)

func TestDecodeAll(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    []any
		wantErr bool
	}{
		"ordered mapping": {
			input: "user: alice\npassword: hunter2\n",
			want: []any{
				yaml.MapSlice{
					{Key: "user", Value: "alice"},
					{Key: "password", Value: "hunter2"},
				},
			},
		},
		"nested sequence": {
			input: "items:\n  - a\n  - b\n",
			want: []any{
				yaml.MapSlice{
					{Key: "items", Value: []any{"a", "b"}},
				},
			},
		},
		"multiple documents": {
			input: "a: 1\n---\nb: 2\n",
			want: []any{
				yaml.MapSlice{{Key: "a", Value: uint64(1)}},
				yaml.MapSlice{{Key: "b", Value: uint64(2)}},
			},
		},
		"empty stream": {
			input: "",
			want:  []any{},
		},
		"json input": {
			input: `{"b": "x", "a": ["y"]}`,
			want: []any{
				yaml.MapSlice{
					{Key: "b", Value: "x"},
					{Key: "a", Value: []any{"y"}},
				},
			},
		},
		"invalid yaml": {
			input:   "key: [unclosed",
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := yaml.DecodeAll([]byte(tc.input))

			if tc.wantErr {
				require.Error(t, err)

				var yamlErr *yaml.Error
				require.ErrorAs(t, err, &yamlErr)
				assert.NotNil(t, yamlErr.Token)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeAll(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		docs    []any
		want    string
		opts    []yaml.EncodeOpt
		wantErr bool
	}{
		"keeps key order": {
			docs: []any{
				yaml.MapSlice{
					{Key: "zeta", Value: "1"},
					{Key: "alpha", Value: []any{"a", "b"}},
				},
			},
			want: "zeta: \"1\"\nalpha:\n  - a\n  - b\n",
		},
		"document separators": {
			docs: []any{
				yaml.MapSlice{{Key: "a", Value: "x"}},
				yaml.MapSlice{{Key: "b", Value: "y"}},
			},
			want: "a: x\n---\nb: y\n",
		},
		"json output": {
			docs: []any{
				yaml.MapSlice{{Key: "a", Value: "x"}},
			},
			opts: []yaml.EncodeOpt{yaml.WithJSON(true)},
			want: "{\"a\": \"x\"}\n",
		},
		"json rejects multiple documents": {
			docs:    []any{"a", "b"},
			opts:    []yaml.EncodeOpt{yaml.WithJSON(true)},
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := yaml.EncodeAll(tc.docs, tc.opts...)

			if tc.wantErr {
				require.ErrorIs(t, err, yaml.ErrMultipleJSONDocuments)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	input := "b: 2\na:\n  c:\n    - x\n    - y: z\n"

	docs, err := yaml.DecodeAll([]byte(input))
	require.NoError(t, err)

	out, err := yaml.EncodeAll(docs)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count,omitempty"`
	}

	t.Run("struct with json tags", func(t *testing.T) {
		t.Parallel()

		var got struct {
			Items []item `json:"items"`
		}

		err := yaml.Unmarshal([]byte("items:\n  - name: a\n    count: 2\n  - name: b\nextra: true\n---\nitems: []\n"), &got)
		require.NoError(t, err)
		assert.Equal(t, []item{{Name: "a", Count: 2}, {Name: "b"}}, got.Items)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		got := item{Name: "unchanged"}

		require.NoError(t, yaml.Unmarshal(nil, &got))
		assert.Equal(t, "unchanged", got.Name)
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		var got any

		err := yaml.Unmarshal([]byte("a: [\n"), &got)

		var yamlErr *yaml.Error
		require.ErrorAs(t, err, &yamlErr)
		assert.NotNil(t, yamlErr.Token)
	})
}
