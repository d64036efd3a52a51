package versions

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	vcs := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-01T10:20:30Z"},
	}

	tests := []struct {
		name                    string
		version, commit, date   string
		settings                []debug.BuildSetting
		wantVersion, wantCommit string
		wantDate                string
	}{
		{
			name:    "release build keeps ldflags values",
			version: "v1.2.0", commit: "abc", date: "2026-01-02T03:04:05Z",
			settings:    vcs,
			wantVersion: "v1.2.0", wantCommit: "abc", wantDate: "2026-01-02 03:04:05 UTC",
		},
		{
			name:    "dev build uses vcs stamp",
			version: "dev", commit: unknown, date: unknown,
			settings:    vcs,
			wantVersion: "build-01234567", wantCommit: "0123456789abcdef", wantDate: "2026-03-01 10:20:30 UTC",
		},
		{
			name:    "dev build without vcs stays dev",
			version: "dev", commit: unknown, date: unknown,
			wantVersion: "dev", wantCommit: unknown, wantDate: unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := resolve(tt.version, tt.commit, tt.date, tt.settings)
			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.wantCommit, got.Commit)
			assert.Equal(t, tt.wantDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Contains(t, got.String(), got.Version)
		})
	}
}
