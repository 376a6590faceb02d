package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammadumar-dev/resumeagent/internal/schemas"
)

const masterResumeJSON = `{
  "fullName": "Ada Lovelace",
  "summary": "Backend engineer focused on data pipelines.",
  "skills": ["Go", "PostgreSQL"],
  "experience": [
    {"title": "Engineer", "company": "Analytical Engines", "bullets": ["Built the difference engine API"]}
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadMasterResume(t *testing.T) {
	content, err := readMasterResume(writeTemp(t, "master.json", masterResumeJSON))
	require.NoError(t, err)
	assert.JSONEq(t, masterResumeJSON, string(content))
}

func TestReadMasterResume_SchemaViolation(t *testing.T) {
	_, err := readMasterResume(writeTemp(t, "master.json", `{"fullName": "Ada"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid master résumé")

	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReadMasterResume_MissingFile(t *testing.T) {
	_, err := readMasterResume(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read master résumé")
}

func TestReadJobDescription(t *testing.T) {
	jd := "Senior Go Engineer at Acme. Build resilient distributed systems."
	got, err := readJobDescription(writeTemp(t, "jd.txt", "\n  "+jd+"\n\n"))
	require.NoError(t, err)
	assert.Equal(t, jd, got)
}

func TestReadJobDescription_TooShort(t *testing.T) {
	_, err := readJobDescription(writeTemp(t, "jd.txt", "Go dev"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job description")
}

func TestReadJobDescription_TooLong(t *testing.T) {
	_, err := readJobDescription(writeTemp(t, "jd.txt", strings.Repeat("a", 20001)))
	require.Error(t, err)
}

func TestParseUserID(t *testing.T) {
	id := uuid.New()
	got, err := parseUserID(" " + id.String() + " ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseUserID("not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user ID")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "user", "token", "generate", "status", "usage"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestCLI_Help(t *testing.T) {
	binaryPath := getBinaryPath(t)

	out, err := exec.Command(binaryPath, "--help").CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Contains(t, string(out), "generate")
	assert.Contains(t, string(out), "serve")
}

func TestCLI_TokenRequiresSecret(t *testing.T) {
	binaryPath := getBinaryPath(t)

	cmd := exec.Command(binaryPath, "token", "--user", uuid.NewString())
	cmd.Env = append(os.Environ(), "JWT_SECRET=")
	cmd.Dir = t.TempDir()
	out, err := cmd.CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(out), "JWT_SECRET")
}

func TestCLI_GenerateRejectsBadUser(t *testing.T) {
	binaryPath := getBinaryPath(t)

	jd := writeTemp(t, "jd.txt", "Senior Go Engineer at Acme. Build resilient distributed systems.")
	out, err := exec.Command(binaryPath, "generate", "--user", "nope", "--jd-file", jd).CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(out), "invalid user ID")
}
