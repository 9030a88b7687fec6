package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.Pipeline.ScoreThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Pipeline.IoUThreshold, 1e-9)
	assert.Equal(t, 500, cfg.OCR.MaxCropDim)
	assert.Equal(t, 2, cfg.OCR.Upscale)
	assert.Equal(t, PolicyOnce, cfg.OCR.Policy)
	assert.Equal(t, 60*time.Second, cfg.Approval.ResponseTimeout)
	assert.Equal(t, 30*time.Second, cfg.Approval.Cooldown)
	assert.Equal(t, BackendFile, cfg.Approval.Backend)
	assert.Equal(t, "db_json/users.json", cfg.Registry.Path)
	assert.Equal(t, 256, cfg.Events.QueueSize)
	assert.Equal(t, 15*time.Second, cfg.Events.Timeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	content := []byte(`
approval:
  cooldown: 45s
ocr:
  policy: repeat
  repeat_every: 5
notify:
  backend: webhook
  webhook_url: http://relay:5000
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("GATE_APPROVAL_RESPONSE_TIMEOUT", "90s")
	t.Setenv("GATE_PIPELINE_SCORE_THRESHOLD", "0.8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Approval.Cooldown)
	assert.Equal(t, 90*time.Second, cfg.Approval.ResponseTimeout)
	assert.InDelta(t, 0.8, cfg.Pipeline.ScoreThreshold, 1e-9)
	assert.Equal(t, PolicyRepeat, cfg.OCR.Policy)
	assert.Equal(t, 5, cfg.OCR.RepeatEvery)
	assert.Equal(t, "webhook", cfg.Notify.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.OCR.Policy = "sometimes"
	cfg.Notify.Backend = "telegram"
	cfg.Approval.Backend = "s3"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.policy")
	assert.Contains(t, err.Error(), "notify.telegram_token")
	assert.Contains(t, err.Error(), "approval.backend")
}
