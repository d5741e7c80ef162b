package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevision(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		info *debug.BuildInfo
		ok   bool
		want string
	}{
		"no build info": {
			want: "unknown",
		},
		"no vcs settings": {
			info: &debug.BuildInfo{},
			ok:   true,
			want: "unknown",
		},
		"long revision is shortened": {
			info: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
			}},
			ok:   true,
			want: "0123456",
		},
		"modified tree": {
			info: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.modified", Value: "true"},
			}},
			ok:   true,
			want: "abc-dirty",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := revision(func() (*debug.BuildInfo, bool) {
				return tc.info, tc.ok
			})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	s := String()
	assert.Contains(t, s, GetVersion())
	assert.Contains(t, s, GoVersion)
}
