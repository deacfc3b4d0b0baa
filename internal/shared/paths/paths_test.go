package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewState(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		stateDir string
		want     string
	}{
		{"default", "/work/shop", "", "/work/shop/.api-diagnostics"},
		{"relative", "/work/shop", "state", "/work/shop/state"},
		{"absolute", "/work/shop", "/var/apidiag", "/var/apidiag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), NewState(tt.root, tt.stateDir).Dir)
		})
	}
}

func TestStateLayout(t *testing.T) {
	s := NewState("/work/shop", "")

	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/backups"), s.BackupsDir())
	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/backups/history"), s.HistoryDir())
	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/config.yaml"), s.ConfigPath())
	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/enabled"), s.EnabledPath())
	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/index/checkpoint.zst"), s.CheckpointPath())
	assert.Equal(t, filepath.FromSlash("/work/shop/.api-diagnostics/logs/api-diagnostics.log"), s.LogPath(""))
	assert.Equal(t, filepath.FromSlash("/tmp/x.log"), s.LogPath("/tmp/x.log"))
	assert.Len(t, s.StandardDirectories(), 6)
}

func TestContains(t *testing.T) {
	s := NewState("/work/shop", "")

	assert.True(t, s.Contains("/work/shop/.api-diagnostics"))
	assert.True(t, s.Contains("/work/shop/.api-diagnostics/backups/x"))
	assert.False(t, s.Contains("/work/shop/app.py"))
	assert.False(t, s.Contains("/work/shop/.api-diagnostics-other/x"))
}

func TestRelative(t *testing.T) {
	s := NewState("/work/shop", "")

	assert.Equal(t, filepath.FromSlash("src/index.js"), s.Relative("/work/shop/src/index.js"))
	assert.Equal(t, "/elsewhere/x", s.Relative("/elsewhere/x"))
}

func TestValidateRelative(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"app.py", false},
		{"src/index.js", false},
		{"", true},
		{"/etc/passwd", true},
		{"../outside", true},
		{"a/../../outside", true},
	}

	for _, tt := range tests {
		err := ValidateRelative(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
		} else {
			assert.NoError(t, err, tt.path)
		}
	}
}
