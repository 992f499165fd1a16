package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "autokuma.yaml", "kuma:\n  url: http://localhost:3001\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kuma", cfg.Docker.LabelPrefix)
	assert.Equal(t, DockerSourceContainers, cfg.Docker.Source)
	assert.True(t, cfg.Docker.Enabled)
	assert.True(t, cfg.Files.Enabled)
	assert.False(t, cfg.Kubernetes.Enabled)
	assert.Equal(t, OnDeleteDelete, cfg.OnDelete)
	assert.Equal(t, 5*time.Second, cfg.SyncIntervalDuration())
	assert.Equal(t, time.Minute, cfg.GraceDuration())
	assert.Equal(t, "AutoKuma", cfg.TagName)
	assert.Equal(t, "#42C0FB", cfg.TagColor)
	assert.False(t, cfg.InsecureEnvAccess)
	assert.Equal(t, 30*time.Second, cfg.KumaClientConfig().CallTimeout)
}

func TestLoadSupportsJSONAndTOML(t *testing.T) {
	jsonPath := writeConfig(t, "autokuma.json",
		`{"kuma": {"url": "http://localhost:3001"}, "on_delete": "keep"}`)
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, OnDeleteKeep, cfg.OnDelete)

	tomlPath := writeConfig(t, "autokuma.toml",
		"sync_interval = 2.5\n[kuma]\nurl = \"http://localhost:3001\"\n")
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.SyncIntervalDuration())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "autokuma.yaml",
		"kuma:\n  url: http://localhost:3001\n  username: fileuser\n")

	t.Setenv("AUTOKUMA__KUMA__USERNAME", "envuser")
	t.Setenv("AUTOKUMA__DELETE_GRACE_PERIOD", "120")
	t.Setenv("AUTOKUMA__DOCKER__LABEL_PREFIX", "uptime")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "envuser", cfg.Kuma.Username)
	assert.Equal(t, 2*time.Minute, cfg.GraceDuration())
	assert.Equal(t, "uptime", cfg.Docker.LabelPrefix)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing url", "docker:\n  enabled: false\n"},
		{"relative url", "kuma:\n  url: localhost:3001\n"},
		{"bad docker source", "kuma:\n  url: http://x\ndocker:\n  source: Sometimes\n"},
		{"bad on_delete", "kuma:\n  url: http://x\non_delete: archive\n"},
		{"bad log level", "kuma:\n  url: http://x\nlog_level: loud\n"},
		{"zero interval", "kuma:\n  url: http://x\nsync_interval: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "autokuma.yaml", tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDataDirResolution(t *testing.T) {
	cfg := &Config{DataPath: "/var/lib/autokuma"}
	assert.Equal(t, "/var/lib/autokuma", cfg.DataDir())

	t.Setenv("AUTOKUMA_DOCKER", "1")
	cfg = &Config{}
	assert.Equal(t, "/data", cfg.DataDir())
}
