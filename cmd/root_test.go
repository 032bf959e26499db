// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actionwatch/internal/config"
)

// executeRoot runs a fresh command tree with args and returns its output.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actionwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeRoot(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, err := executeRoot(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "actionwatch version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := executeRoot(t)
	require.NoError(t, err)
	assert.Contains(t, out, "actionwatch reports what a single browser action changed on a page.")
	assert.Contains(t, out, "run")
}

func TestRootCmd_MissingConfigFileFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := executeRoot(t, "--config", missing, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := loadConfig(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, config.NewDefaultConfig(), cfg)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
monitor:
  action_window: 250ms
  stabilization:
    timeout: 3s
    debounce: 200ms
  listeners:
    dialog_policy: dismiss
browser:
  headless: false
`)
		cfg, err := loadConfig(viper.New(), path)
		require.NoError(t, err)

		assert.Equal(t, 250*time.Millisecond, cfg.Monitor().ActionWindow)
		assert.Equal(t, 3*time.Second, cfg.Monitor().Stabilization.Timeout)
		assert.Equal(t, 200*time.Millisecond, cfg.Monitor().Stabilization.Debounce)
		assert.Equal(t, config.DialogDismiss, cfg.Monitor().Listeners.DialogPolicy)
		assert.False(t, cfg.Browser().Headless)
		// Untouched keys keep their defaults.
		assert.Equal(t, 5*time.Second, cfg.Monitor().Stabilization.Ceiling)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeConfigFile(t, `
monitor:
  stabilization:
    debounce: 200ms
`)
		t.Setenv("ACTIONWATCH_MONITOR_STABILIZATION_DEBOUNCE", "750ms")

		cfg, err := loadConfig(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, 750*time.Millisecond, cfg.Monitor().Stabilization.Debounce)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfigFile(t, `
monitor:
  listeners:
    dialog_policy: shrug
`)
		_, err := loadConfig(viper.New(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialog_policy")
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := writeConfigFile(t, "monitor: [unterminated\n")
		_, err := loadConfig(viper.New(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}
