package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"digiget/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mu       sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id string, contents string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.messages == nil {
		o.messages = map[string]string{}
	}
	o.messages[id] = contents
}

func TestTranscriptKeepsUnparsedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		fmt.Fprint(w, "<svg/>")
	}))
	defer srv.Close()

	rec := &telemetry.Recorder{}
	out := &memoryOutput{}
	client := resty.New()
	InstrumentClient(client, nil, rec, out)

	res, err := client.R().
		SetDoNotParseResponse(true).
		SetFormData(map[string]string{"email": "a@b.c"}).
		Post(srv.URL + "/br/xhr/login")
	require.NoError(t, err)
	defer res.RawBody().Close()

	body, err := io.ReadAll(res.RawBody())
	require.NoError(t, err)
	require.Equal(t, "<svg/>", string(body))

	require.Len(t, out.messages, 1)
	transcript := out.messages["1"]
	require.Contains(t, transcript, "POST "+srv.URL+"/br/xhr/login")
	require.Contains(t, transcript, "email=a%40b.c")
	require.Contains(t, transcript, "Content-Type: image/svg+xml")
	require.Contains(t, transcript, "<svg/>")

	debug := rec.Reports(telemetry.KindDebug)
	require.Len(t, debug, 2)
	require.Equal(t, report_resty_request, debug[0].ID)
	require.Equal(t, report_resty_response, debug[1].ID)
}

func TestReportsFailedRequests(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &telemetry.Recorder{}
	client := resty.New()
	InstrumentClient(client, nil, rec, nil)

	_, err := client.R().Get(url)
	require.Error(t, err)

	broken := rec.Reports(telemetry.KindBroken)
	require.Len(t, broken, 1)
	require.Equal(t, report_resty_response, broken[0].ID)
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump", "nested")

	out, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	out.Write("1", "transcript")

	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.Equal(t, "transcript", string(contents))
}

func TestFilesystemOutputKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep me"), 0o600))

	_, err := NewFilesystemOutput(dir)
	require.ErrorIs(t, err, ErrDirectoryNotEmpty)

	contents, err := os.ReadFile(notes)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(contents))
}

func TestFilesystemOutputEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	out, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	out.Write("2", "transcript")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
