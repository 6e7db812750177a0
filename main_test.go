package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, env(map[string]string{"HOME": "/home/u", "KB_API_URL": "http://env.example"}))
	require.NoError(t, err)

	assert.Equal(t, "http://env.example", cfg.APIURL)
	assert.Equal(t, "auto", cfg.Language)
	assert.True(t, cfg.Markdown)
	assert.False(t, cfg.Verbose)
}

func TestParseFlags_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: http://file.example
  timeout: 10s
chat:
  language: hi
`), 0o644))

	cfg, err := parseFlags([]string{
		"-config", path,
		"-api-url", "http://flag.example",
		"-timeout", "90s",
		"-no-markdown",
	}, env(map[string]string{"HOME": dir}))
	require.NoError(t, err)

	assert.Equal(t, "http://flag.example", cfg.APIURL)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "hi", cfg.Language, "unset flags keep the file value")
	assert.False(t, cfg.Markdown)
}

func TestParseFlags_BadFlag(t *testing.T) {
	_, err := parseFlags([]string{"-timeout", "soon"}, env(nil))
	assert.Error(t, err)
}

func TestParseFlags_FlagRepairsFileValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  url: kb.local\n"), 0o644))

	cfg, err := parseFlags([]string{"-config", path, "-api-url", "http://kb.local:5000"}, env(map[string]string{"HOME": dir}))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "http://kb.local:5000", cfg.APIURL)
}

func TestParseFlags_UnsupportedLanguageFailsValidation(t *testing.T) {
	cfg, err := parseFlags([]string{"-lang", "xx"}, env(map[string]string{"HOME": t.TempDir()}))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), `unsupported language "xx"`)
}
