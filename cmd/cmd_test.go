package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/stream"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRepairCommand_Stdin(t *testing.T) {
	input := `[{"id":"ch-1","title":"Intro","slug":"intro"},{"id":"ch-2","title":"Setup`

	stdout, stderr, err := runCLI(t, input, "repair")
	require.NoError(t, err)
	assert.Contains(t, stderr, "repaired")

	var chapters []models.ChapterNode
	require.NoError(t, json.Unmarshal([]byte(stdout), &chapters))
	assert.Equal(t, []models.ChapterNode{{ID: "ch-1", Title: "Intro", Slug: "intro"}}, chapters)
}

func TestRepairCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.txt")
	require.NoError(t, os.WriteFile(path, []byte("Here you go:\n```json\n[{\"id\":\"1\",\"title\":\"A\",\"slug\":\"a\"}]\n```"), 0o600))

	stdout, stderr, err := runCLI(t, "", "repair", path)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, `"slug": "a"`)
}

func TestRepairCommand_Raw(t *testing.T) {
	stdout, _, err := runCLI(t, `[{"id":"1","title":"A","slug":"a"},{"id":"2"`, "repair", "--raw")
	require.NoError(t, err)
	assert.Equal(t, "[{\"id\":\"1\",\"title\":\"A\",\"slug\":\"a\"}]\n", stdout)
}

func TestRepairCommand_Unrecoverable(t *testing.T) {
	_, _, err := runCLI(t, `{"chapters":"none"}`, "repair")
	require.Error(t, err)
	assert.Equal(t, errs.KindMalformedPayload, errs.KindOf(err))
}

func TestGenerateCommand_Streams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range []models.Event{
			models.Chunk("It was "),
			models.Chunk("a dark night."),
			models.Done("It was a dark night.", models.Metadata{StopReason: "end_turn", WordCount: 5}),
		} {
			_ = stream.WriteFrame(w, stream.FrameFromEvent(ev))
		}
	}))
	defer server.Close()

	stdout, stderr, err := runCLI(t, "opening line", "generate",
		"--server", server.URL,
		"--provider", "anthropic",
		"--model", "claude-test",
		"--prompt", "-")
	require.NoError(t, err)
	assert.Equal(t, "It was a dark night.\n", stdout)
	assert.Contains(t, stderr, "stop=end_turn words=5")
}

func TestGenerateCommand_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"apiKey is required","type":"bad_request"}`)
	}))
	defer server.Close()

	_, _, err := runCLI(t, "", "generate",
		"--server", server.URL,
		"--provider", "openai",
		"--model", "gpt-test",
		"--prompt", "hello")
	require.Error(t, err)
	assert.Equal(t, errs.KindBadRequest, errs.KindOf(err))
}

func TestGenerateCommand_RequiresFlags(t *testing.T) {
	_, _, err := runCLI(t, "", "generate", "--provider", "openai")
	assert.Error(t, err)
}

func TestServeCommand_RequiresConfig(t *testing.T) {
	_, _, err := runCLI(t, "", "serve")
	assert.Error(t, err)
}
