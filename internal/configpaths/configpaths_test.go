package configpaths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigCandidatePaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "cfg"))
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AppData", t.TempDir())

	tests := []struct {
		name     string
		userCfg  string
		firstOf  string
		wantJSON int
		wantYAML int
		wantTOML int
	}{
		{name: "none", wantJSON: 2, wantYAML: 4, wantTOML: 2},
		{name: "yaml", userCfg: "my.YML", firstOf: "yaml", wantJSON: 2, wantYAML: 5, wantTOML: 2},
		{name: "toml", userCfg: "/etc/pb.toml", firstOf: "toml", wantJSON: 2, wantYAML: 4, wantTOML: 3},
		{name: "unknown extension is json", userCfg: "pb.conf", firstOf: "json", wantJSON: 3, wantYAML: 4, wantTOML: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, y, to := ConfigCandidatePaths(tt.userCfg)
			assert.Len(t, j, tt.wantJSON)
			assert.Len(t, y, tt.wantYAML)
			assert.Len(t, to, tt.wantTOML)
			switch tt.firstOf {
			case "json":
				assert.Equal(t, tt.userCfg, j[0])
			case "yaml":
				assert.Equal(t, tt.userCfg, y[0])
			case "toml":
				assert.Equal(t, tt.userCfg, to[0])
			}
			assert.Equal(t, filepath.Join(".", "config.toml"), to[len(to)-1])
		})
	}
}

func TestDefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "cfg"))
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AppData", t.TempDir())
	dir, err := DefaultConfigDir()
	if assert.NoError(t, err) {
		assert.Equal(t, "padbridge", filepath.Base(dir))
	}
}
