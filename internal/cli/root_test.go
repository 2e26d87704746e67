package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scaliseraoul/ambrogio/internal/config"
)

const sampleModule = "def add(a, b):\n    return a + b\n"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// isolate runs the test from an empty directory with no credential in the environment.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv(config.CredentialEnv, "")
	t.Setenv("AMBROGIO_LLM_API_KEY", "")
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.py"), []byte(sampleModule), 0o644))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "ambrogio")
}

func TestMissingCredentialFailsBeforeWork(t *testing.T) {
	isolate(t)
	project := writeProject(t)

	for _, sub := range []string{"docstring", "coverage"} {
		_, err := runCLI(t, sub, "--path", project)
		require.Error(t, err, sub)
		require.True(t, errors.Is(err, config.ErrMissingCredential), sub)
	}

	data, err := os.ReadFile(filepath.Join(project, "calc.py"))
	require.NoError(t, err)
	require.Equal(t, sampleModule, string(data))
}

func TestStructureCommand(t *testing.T) {
	isolate(t)
	project := writeProject(t)

	out, err := runCLI(t, "structure", "--path", project)
	require.NoError(t, err)
	require.Contains(t, out, "Repository Root: ")
	require.Contains(t, out, "File: calc.py")
	require.Contains(t, out, "    - add")
}

func TestStructureRejectsMissingPath(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, "structure", "--path", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestDocstringDryRunAgainstFakeOpenAI(t *testing.T) {
	isolate(t)
	project := writeProject(t)

	var (
		calls int
		paths []string
		auth  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		paths = append(paths, r.URL.Path)
		auth = append(auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "```python\n\"\"\"Add two numbers.\"\"\"\n```"},
			}},
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, "docstring", "--path", project, "--openai-key", "sk-test", "--api-base", srv.URL, "--dry-run")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, []string{"/v1/chat/completions"}, paths)
	require.Equal(t, []string{"Bearer sk-test"}, auth)
	require.Contains(t, out, "--- a/calc.py")
	require.Contains(t, out, "+    \"\"\"Add two numbers.\"\"\"")
	require.Contains(t, out, "Would modify: calc.py")
	require.Contains(t, out, farewell)

	data, err := os.ReadFile(filepath.Join(project, "calc.py"))
	require.NoError(t, err)
	require.Equal(t, sampleModule, string(data))
}

func TestDocstringRejectsInteractiveDryRun(t *testing.T) {
	isolate(t)
	project := writeProject(t)
	_, err := runCLI(t, "docstring", "--path", project, "--api-key", "sk", "--dry-run", "--interactive")
	require.ErrorContains(t, err, "cannot be combined")
}

func TestDoctorReportsMissingInterpreter(t *testing.T) {
	isolate(t)
	project := writeProject(t)
	t.Setenv("AMBROGIO_COVERAGE_PYTHON", "ambrogio-no-such-python")

	out, err := runCLI(t, "doctor", "--path", project)
	require.Error(t, err)
	require.Contains(t, out, "Config OK")
	require.Contains(t, out, "fail")
}

func TestInvalidLogFormatFlag(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, "--log-format", "xml", "version")
	require.NoError(t, err)

	_, err = runCLI(t, "--log-format", "xml", "structure", "--path", writeProject(t))
	require.ErrorContains(t, err, "logging.format")
}

func TestMetricsFileWrittenOnExit(t *testing.T) {
	dir := isolate(t)
	metrics := filepath.Join(dir, "ambrogio.prom")

	_, err := runCLI(t, "--metrics-file", metrics, "structure", "--path", writeProject(t))
	require.NoError(t, err)
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(data), "ambrogio_generation_attempts_total 0")
}
