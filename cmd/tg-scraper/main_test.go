package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-scraper/pkg/telegram"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// clearCredEnv blanks the credential override variables so the ambient
// environment cannot leak into a test.
func clearCredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(telegram.EnvAPIID, "")
	t.Setenv(telegram.EnvAPIHash, "")
	t.Setenv(telegram.EnvPhone, "")
}

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
save_root: "./albums"
link_concurrency: 2
full_crawl: true
run_timeout: 1h
`
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	cfg, err := loadConfig(cfgPath, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, "./albums", cfg.SaveRoot)
	assert.Equal(t, int64(2), cfg.LinkConcurrency)
	assert.True(t, cfg.FullCrawl)
	assert.Equal(t, time.Hour, cfg.RunTimeout)
	// Absent keys keep their defaults
	assert.Equal(t, int64(10), cfg.ImageConcurrency)
	assert.Equal(t, "./scraper_state", cfg.StateDir)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), discardLogger())

	require.NoError(t, err)
	assert.Equal(t, "telegraph_images", cfg.SaveRoot)
	assert.Equal(t, int64(4), cfg.LinkConcurrency)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, err := loadConfig(cfgPath, discardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestReadEntriesFile(t *testing.T) {
	content := `
# channels worth keeping an eye on
@somechannel
https://telegra.ph/Example-01-01, https://graph.org/Example-01-01

https://t.me/c/1234567890/55
`
	path := filepath.Join(t.TempDir(), "entries.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries, err := readEntriesFile(path)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"@somechannel",
		"https://telegra.ph/Example-01-01",
		"https://graph.org/Example-01-01",
		"https://t.me/c/1234567890/55",
	}, entries)
}

func TestReadEntriesFile_Missing(t *testing.T) {
	_, err := readEntriesFile(filepath.Join(t.TempDir(), "absent.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read input file")
}

func TestDoValidate_OK(t *testing.T) {
	clearCredEnv(t)
	tmpDir := t.TempDir()

	credPath := filepath.Join(tmpDir, "credentials.json")
	require.NoError(t, os.WriteFile(credPath,
		[]byte(`{"api_id": 12345, "api_hash": "abcdef", "phone": "+15550001111"}`), 0600))

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("credentials_file: "+credPath+"\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: config file")
	assert.Contains(t, stdout.String(), "OK: credentials")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_MissingCredentials(t *testing.T) {
	clearCredEnv(t)
	tmpDir := t.TempDir()

	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("credentials_file: "+filepath.Join(tmpDir, "absent.json")+"\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "credentials")
}

func TestDoValidate_InvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "ERROR")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	assert.Contains(t, out, "crawl")
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "channels")
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "version")
}
