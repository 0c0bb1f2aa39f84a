package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizarwork/mvd/internal/diagnostics"
	"github.com/mizarwork/mvd/internal/paths"
	"github.com/mizarwork/mvd/internal/pipeline"
	"github.com/mizarwork/mvd/internal/procrun"
	"github.com/mizarwork/mvd/internal/session"
	"github.com/mizarwork/mvd/internal/testutil"
	"github.com/mizarwork/mvd/internal/tools"
	"github.com/mizarwork/mvd/internal/workspace"
)

type harness struct {
	srv    *Server
	paths  paths.ToolPaths
	runner *procrun.MockRunner
	ws     *workspace.Manager
	cookie *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tp := testutil.TestPaths(t)
	testutil.WriteCatalog(t, tp, "# 204\nInvalid type\n")
	// The real locator only needs the files to exist.
	for _, tool := range []string{"miz2prel", "makeenv", "verifier"} {
		require.NoError(t, os.WriteFile(filepath.Join(tp.ExecutableRoot, tool), nil, 0o755))
	}

	log := testutil.DiscardLogger()
	runner := procrun.NewMockRunner()
	engine := pipeline.NewEngine(tp, nil, tools.NewLocator(), runner, log)
	ws := workspace.NewManager(tp.WorkspaceRoot, workspace.Options{}, log)
	return &harness{
		srv:    New("127.0.0.1:0", engine, ws, session.NewStore("", 0), log),
		paths:  tp,
		runner: runner,
		ws:     ws,
	}
}

func (h *harness) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			h.cookie = c
		}
	}
	return rec
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) reply {
	t.Helper()
	var r reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

// reportWriter writes the error report next to the tool's input.
func reportWriter(t *testing.T, content string) func(procrun.Command) {
	return func(c procrun.Command) {
		input := c.Args[len(c.Args)-1]
		if !filepath.IsAbs(input) {
			input = filepath.Join(c.Dir, input)
		}
		assert.NoError(t, os.WriteFile(diagnostics.ReportPath(input), []byte(content), 0o644), "writing report")
	}
}

func TestSourceCompileAndStream(t *testing.T) {
	h := newHarness(t)
	h.runner.Script("miz2prel", procrun.MockScript{
		Stdout: []string{"Processing abc"},
		Stderr: []string{"bad token"},
	})

	rec := h.do(t, http.MethodPost, "/api/source/compile", url.Values{"content": {"<mizar abc>environ</mizar>"}})
	require.Equal(t, http.StatusOK, rec.Code)
	r := decodeReply(t, rec)
	assert.True(t, r.Success)
	assert.Equal(t, "Mizar content processed successfully", r.Message)
	assert.FileExists(t, filepath.Join(h.paths.WorkspaceRoot, "TEXT", "abc.miz"))

	rec = h.do(t, http.MethodGet, "/api/source/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"data: Processing abc\n\n"+
			"data: ERROR: bad token\n\n"+
			"event: end\ndata: Compilation complete\n\n",
		rec.Body.String())
}

func TestViewStreamStopsAtEnvironmentDiagnostics(t *testing.T) {
	h := newHarness(t)
	h.runner.Script("makeenv", procrun.MockScript{OnStart: reportWriter(t, "5 10 204\n")})

	rec := h.do(t, http.MethodPost, "/api/view/compile", url.Values{"content": {"environ\nbegin\n"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/view/events", nil)
	body := rec.Body.String()

	assert.Contains(t, body, `event: compileErrors`+"\n"+`data: [{"code":204,"line":5,"column":10,"message":"Invalid type"}]`+"\n\n")
	assert.True(t, strings.HasSuffix(body, "event: end\ndata: Compilation complete\n\n"))
	assert.Equal(t, 1, strings.Count(body, "event: end"))
	assert.Zero(t, h.runner.CallCount("verifier"))
}

func TestStreamWithoutJob(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/view/events", nil)
	assert.Equal(t, "data: Mizar file path not found in session\n\n", rec.Body.String())
	assert.Empty(t, h.runner.Calls())
}

func TestStreamsAreIsolatedPerSession(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/source/compile", url.Values{"content": {"<mizar abc>x</mizar>"}})

	h.cookie = nil
	rec := h.do(t, http.MethodGet, "/api/source/events", nil)
	assert.Equal(t, "data: Mizar file path not found in session\n\n", rec.Body.String())
}

func TestSourceCompileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no unit", "plain text", "Mizar content not found"},
		{"bad stem", "<mizar toolongname>x</mizar>", "Invalid characters in file name: 'toolongname'"},
		{"mismatch", "<mizar a>x</mizar><mizar b>y</mizar>", "File name mismatch in <mizar> tags: 'a' and 'b'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, http.MethodPost, "/api/source/compile", url.Values{"content": {tt.content}})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			r := decodeReply(t, rec)
			assert.False(t, r.Success)
			assert.Contains(t, r.Message, tt.want)

			entries, _ := os.ReadDir(h.ws.TextDir())
			assert.Empty(t, entries, "no file may be written for a rejected unit")
		})
	}
}

func TestCompileAcceptsJSON(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/source/compile", strings.NewReader(`{"content":"<mizar xyz>begin</mizar>"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data, err := os.ReadFile(filepath.Join(h.ws.TextDir(), "xyz.miz"))
	require.NoError(t, err)
	assert.Equal(t, "begin\n", string(data))
}

func TestLegacyCalls(t *testing.T) {
	h := newHarness(t)
	h.runner.Script("miz2prel", procrun.MockScript{Stdout: []string{"ok"}})

	rec := h.do(t, http.MethodPost, "/lib/exe/ajax.php?call=source_compile", url.Values{"content": {"<mizar abc>x</mizar>"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/lib/exe/ajax.php?call=source_sse", nil)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "data: ok\n\n"))

	rec = h.do(t, http.MethodGet, "/lib/exe/ajax.php?call=clear_temp_files", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = h.do(t, http.MethodPost, "/lib/exe/ajax.php?call=drop_tables", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeReply(t, rec).Success)
}

func TestParseCall(t *testing.T) {
	tests := map[string]command{
		"source_compile":       compileCommand{workflow: pipeline.WorkflowSource},
		"view_compile":         compileCommand{workflow: pipeline.WorkflowView},
		"source_sse":           streamCommand{workflow: pipeline.WorkflowSource},
		"view_sse":             streamCommand{workflow: pipeline.WorkflowView},
		"clear_temp_files":     clearCommand{},
		"create_combined_file": combineCommand{},
	}
	for name, want := range tests {
		got, err := parseCall(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := parseCall("SOURCE_COMPILE")
	assert.Error(t, err)
	_, err = parseCall("")
	assert.Error(t, err)
}

func TestUnknownWorkflowRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/proof/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/view/compile", url.Values{"content": {"a"}})
	h.do(t, http.MethodPost, "/api/view/compile", url.Values{"content": {"b"}})

	rec := h.do(t, http.MethodPost, "/api/workspace/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decodeReply(t, rec)
	assert.True(t, r.Success)
	assert.Equal(t, "Temporary files cleared successfully", r.Message)

	entries, err := os.ReadDir(h.ws.TextDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCombine(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/combined", url.Values{"content": {"environ\n"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var r struct {
		Success bool
		Message string
		Data    combinedFile
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.True(t, r.Success)
	assert.Equal(t, "combined_file.miz", r.Data.Filename)
	assert.Equal(t, "environ\n", r.Data.Content)

	rec = h.do(t, http.MethodPost, "/api/combined", url.Values{"content": {"x"}, "filename": {"mine.miz"}})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "mine.miz", r.Data.Filename)

	rec = h.do(t, http.MethodPost, "/api/combined", url.Values{"content": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Content is empty, no file created", decodeReply(t, rec).Message)
}

func TestSessionCookie(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	require.NotNil(t, h.cookie)
	assert.True(t, h.cookie.HttpOnly)
	first := h.cookie.Value

	// A known cookie is reused, not reissued.
	rec = h.do(t, http.MethodGet, "/health", nil)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, first, h.cookie.Value)

	// A malformed cookie is replaced.
	h.cookie = &http.Cookie{Name: sessionCookie, Value: "../../etc"}
	h.do(t, http.MethodGet, "/health", nil)
	assert.NotEqual(t, "../../etc", h.cookie.Value)
}

func TestEventStreamFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	s := newEventStream(rec)

	require.NoError(t, s.sendEvent(pipeline.Event{Type: pipeline.EventOutput, Content: "line"}))
	require.NoError(t, s.sendEvent(pipeline.Event{Type: pipeline.EventErrorOutput, Content: "oops"}))
	require.NoError(t, s.sendEvent(pipeline.Event{Type: pipeline.EventFatal, Content: "disk full"}))
	require.NoError(t, s.send("", "two\nlines"))
	require.NoError(t, s.sendEvent(pipeline.Event{Type: pipeline.EventEnd}))
	assert.Error(t, s.sendEvent(pipeline.Event{Type: "bogus"}))

	assert.Equal(t,
		"data: line\n\n"+
			"data: ERROR: oops\n\n"+
			"data: ERROR: disk full\n\n"+
			"data: two\ndata: lines\n\n"+
			"event: end\ndata: Compilation complete\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}

// failingWriter rejects every write, like a client that disconnected.
type failingWriter struct {
	httptest.ResponseRecorder
}

func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamStopsOnWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.Script("makeenv", procrun.MockScript{Stdout: []string{"a", "b", "c"}})
	h.do(t, http.MethodPost, "/api/view/compile", url.Values{"content": {"x"}})

	req := httptest.NewRequest(http.MethodGet, "/api/view/events", nil)
	req.AddCookie(h.cookie)
	w := &failingWriter{ResponseRecorder: *httptest.NewRecorder()}
	h.srv.ServeHTTP(w, req)

	assert.Equal(t, 1, h.runner.CallCount("makeenv"))
	assert.Zero(t, h.runner.CallCount("verifier"), "no stage may start after the client is gone")
}
