package cmd

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptorsYAML = `
filters:
  - id: isPicture
    expression:
      any:
        - all:
            - {field: type, op: eq, value: Picture}
rules:
  - id: R1
    filters: [isPicture]
    mappings: [M1]
  - id: R2
    async: true
    filters: [isPicture]
    mappings: [M1, M9]
mappings:
  - id: M1
    blob: file:content
    metadata:
      - {name: "EXIF:Model", property: "imd:model"}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	defer func() { logLevel, logFormat = "info", "json" }()

	for _, format := range []string{"json", "text", "TEXT"} {
		logLevel, logFormat = "debug", format
		_, err := newLogger()
		assert.NoError(t, err, format)
	}

	logLevel, logFormat = "loud", "json"
	_, err := newLogger()
	assert.Error(t, err)

	logLevel, logFormat = "info", "xml"
	_, err = newLogger()
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(descriptorsYAML), 0o644))

	out, err := execute(t, "check", dir, "--type", "Picture")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 rule(s) reference unknown mappings")

	assert.Contains(t, out, "2 rule(s), 1 mapping(s)")
	assert.Contains(t, out, `missing mapping descriptor "M9"`)
	assert.Contains(t, out, "matched R1")
	assert.Contains(t, out, "matched R2")
	assert.Regexp(t, `sync M1\s+file:content -> to_record`, out)
	assert.Regexp(t, `async M1\s+file:content -> to_record`, out)
}

func TestCheck_InvalidDescriptors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte("rules:\n  - id: R1\n    filters: [nope]\n"), 0o644))

	_, err := execute(t, "check", dir)
	assert.Error(t, err)
}

func TestMigrateAndAPIKey(t *testing.T) {
	secretID := "0123456789abcdef0123456789abcdef"
	t.Setenv("MS_HMAC_SECRET", secretID+":"+base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	dbFlag := "--db-url=sqlite://" + filepath.Join(t.TempDir(), "cli.db")

	_, err := execute(t, "apikey", "create", "ingest", dbFlag)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metasync migrate up")

	out, err := execute(t, "migrate", "up", dbFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = execute(t, "migrate", "status", dbFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
	assert.NotContains(t, out, "pending")

	out, err = execute(t, "apikey", "create", "ingest", dbFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "key:    ms-v1-"+secretID+"-")

	var id string
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "id:"); ok {
			id = strings.TrimSpace(rest)
		}
	}
	require.NotEmpty(t, id)

	out, err = execute(t, "apikey", "revoke", id, dbFlag)
	require.NoError(t, err)
	assert.Contains(t, out, "revoked "+id)

	_, err = execute(t, "apikey", "revoke", id, dbFlag)
	assert.Error(t, err)
}
