package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-cgi/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[application]
name = "demo"
width = 800

[renderer]
backend = "soft"
fence_timeout = "2s"

[log]
level = "debug"
`))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Application.Name)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	assert.Equal(t, uint32(720), cfg.Application.Height)
	assert.Equal(t, BackendSoft, cfg.Renderer.Backend)
	assert.True(t, cfg.Renderer.VSync)
	assert.Equal(t, 2*time.Second, cfg.Renderer.FenceTimeout.Duration)
	assert.Equal(t, core.LogLevelDebug, cfg.LogLevel())
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"syntax":     `[application`,
		"backend":    "[renderer]\nbackend = \"metal\"",
		"anisotropy": "[renderer]\nanisotropy = 32.0",
		"size":       "[application]\nwidth = 0",
		"timeout":    "[renderer]\nfence_timeout = \"soon\"",
		"level":      "[log]\nlevel = \"loud\"",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, core.IsRecoverable(err), "%v", err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, core.IsRecoverable(err))
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Renderer.FenceTimeout.Duration = 1500 * time.Millisecond

	b, err := cfg.Marshal()
	require.NoError(t, err)
	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestRequiresRestart(t *testing.T) {
	a := Default()
	b := Default()
	b.Log.Level = "debug"
	assert.False(t, a.RequiresRestart(b))

	b.Renderer.VSync = !a.Renderer.VSync
	assert.True(t, a.RequiresRestart(b))
}

func TestWatcherDeliversReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// A broken file is skipped, the next good one comes through.
	require.NoError(t, os.WriteFile(path, []byte("[log\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o644))

	// Truncation can surface as an empty, valid file first.
	timeout := time.After(5 * time.Second)
	for level := core.LogLevel(""); level != core.LogLevelWarn; {
		select {
		case cfg := <-w.Updates():
			require.NotNil(t, cfg)
			level = cfg.LogLevel()
		case <-timeout:
			t.Fatal("no configuration update delivered")
		}
	}

	cancel()
	require.NoError(t, <-done)
	// Run closes the channel on exit, so this drain terminates.
	for range w.Updates() {
	}
}
