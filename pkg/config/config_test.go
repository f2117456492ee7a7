package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxPosts, s.MaxPosts)
	assert.Equal(t, DefaultRequestDelay, s.RequestDelay)
	assert.Equal(t, DefaultConcurrency, s.Concurrency)
	assert.Equal(t, DefaultOutputDir, s.OutputDir)
	assert.Equal(t, DefaultFormat, s.Format)
	assert.Equal(t, DefaultLogLevel, s.LogLevel)
	assert.False(t, s.Pretty)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TIMELINE_BEARER_TOKEN", "token-123")
	t.Setenv("TIMELINE_MAX_POSTS", "250")
	t.Setenv("TIMELINE_REQUEST_DELAY", "2500ms")
	t.Setenv("TIMELINE_CONCURRENCY", "4")
	t.Setenv("TIMELINE_FORMAT", "ndjson")
	t.Setenv("TIMELINE_PRETTY", "true")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "token-123", s.BearerToken)
	assert.Equal(t, 250, s.MaxPosts)
	assert.Equal(t, 2500*time.Millisecond, s.RequestDelay)
	assert.Equal(t, 4, s.Concurrency)
	assert.Equal(t, "ndjson", s.Format)
	assert.True(t, s.Pretty)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TIMELINE_BEARER_TOKEN=from-file\nTIMELINE_MAX_POSTS=7\n"), 0o644))

	// godotenv does not override variables already set.
	t.Setenv("TIMELINE_MAX_POSTS", "99")
	t.Setenv("TIMELINE_BEARER_TOKEN", "")
	os.Unsetenv("TIMELINE_BEARER_TOKEN")

	s, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.BearerToken)
	assert.Equal(t, 99, s.MaxPosts)
}

func TestLoad_MissingDefaultEnvFileIsFine(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	_, err = Load(".env")
	assert.NoError(t, err)
}

func TestLoad_MissingExplicitEnvFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("TIMELINE_MAX_POSTS", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	s := &Settings{BearerToken: "t", MaxPosts: 10, Concurrency: 1}
	assert.NoError(t, s.Validate())

	assert.Error(t, (&Settings{MaxPosts: 10, Concurrency: 1}).Validate(), "missing bearer token")
	assert.Error(t, (&Settings{BearerToken: "t", MaxPosts: -1, Concurrency: 1}).Validate(), "negative max posts")
	assert.Error(t, (&Settings{BearerToken: "t", MaxPosts: 10, Concurrency: 0}).Validate(), "zero concurrency")
}
