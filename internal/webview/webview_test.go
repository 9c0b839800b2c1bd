package webview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlinetech/qcode/internal/engine"
	"github.com/qlinetech/qcode/internal/workflow"
	"github.com/qlinetech/qcode/model"
)

type fakeActions struct {
	reply     string
	askCalled chan context.Context
	block     bool
	formatted []string
	applied   []string
}

func (f *fakeActions) Ask(ctx context.Context, prompt string, _ engine.ChatStates) (string, error) {
	if f.askCalled != nil {
		f.askCalled <- ctx
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, nil
}

func (f *fakeActions) Preview(context.Context, string) (string, error) {
	return "--- a.txt\n+++ a.txt\n", nil
}

func (f *fakeActions) Apply(_ context.Context, response string) (model.Summary, error) {
	f.applied = append(f.applied, response)
	return model.Summary{Modified: []string{"a.txt"}}, nil
}

func (f *fakeActions) Format(_ context.Context, path string) bool {
	f.formatted = append(f.formatted, path)
	return path != ""
}

func (f *fakeActions) Run(context.Context, string, string) bool { return true }

func (f *fakeActions) StartDebug(context.Context, string, workflow.DebugConfig) bool { return true }

func (f *fakeActions) StopDebug(context.Context) bool { return false }

func (f *fakeActions) History(context.Context) ([]HistoryItem, error) {
	return []HistoryItem{{ID: "h1", When: "2026-01-02 15:04", Summary: "1 modified", Files: []string{"a.txt", "b.txt"}}}, nil
}

func (f *fakeActions) Settings() map[string]string {
	return map[string]string{"model": "gpt-4o", "buffer": "false"}
}

func TestDisposeIsIdempotent(t *testing.T) {
	p := NewShell(&fakeActions{}, Options{}).Panel()

	var released atomic.Int32
	p.OnDispose(func() { released.Add(1) })
	p.OnDispose(func() { released.Add(10) })

	assert.NotPanics(t, p.Dispose)
	assert.NotPanics(t, p.Dispose)
	assert.Equal(t, int32(11), released.Load())
	assert.True(t, p.Disposed())

	// Late subscriptions are released at once, and only once.
	p.OnDispose(func() { released.Add(100) })
	p.Dispose()
	assert.Equal(t, int32(111), released.Load())

	assert.ErrorIs(t, p.Post(Message{Type: TypeSwitchPage, Page: "chat"}), ErrDisposed)
}

func TestConcurrentDispose(t *testing.T) {
	p := NewShell(&fakeActions{}, Options{}).Panel()
	var released atomic.Int32
	p.OnDispose(func() { released.Add(1) })

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			p.Dispose()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, int32(1), released.Load())
}

func TestDisposeCancelsInFlightHandler(t *testing.T) {
	actions := &fakeActions{block: true, askCalled: make(chan context.Context, 1)}
	p := NewShell(actions, Options{}).Panel()

	require.NoError(t, p.Post(Message{Type: TypePrompt, Text: "hello"}))
	var ctx context.Context
	select {
	case ctx = <-actions.askCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	p.Dispose()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handler context not cancelled")
	}
}

func TestShellReplacesDisposedPanel(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{})
	first := s.Panel()
	assert.Same(t, first, s.Panel())

	s.Dispose()
	s.Dispose()
	second := s.Panel()
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.AssetURI("app.js"), second.AssetURI("app.js"))
}

func TestIndexAndAssets(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{Title: "test"})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	defer s.Dispose()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	p := s.Panel()
	html := string(body)
	assert.Contains(t, html, `href="`+p.AssetURI("style.css")+`"`)
	assert.Contains(t, html, `src="`+p.AssetURI("app.js")+`"`)
	assert.Contains(t, html, `src="`+p.AssetURI("logo.svg")+`"`)
	assert.Contains(t, html, "Describe a change")

	resp, err = http.Get(srv.URL + p.AssetURI("style.css"))
	require.NoError(t, err)
	css, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(css), "body")

	resp, err = http.Get(srv.URL + "/assets/stale/style.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, s *Shell, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+s.Panel().nonce, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg Message) Outbound {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out Outbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestMessageProtocol(t *testing.T) {
	actions := &fakeActions{reply: "Use **fmt** here."}
	s := NewShell(actions, Options{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	defer s.Dispose()

	conn := dial(t, s, srv)

	out := roundTrip(t, conn, Message{Type: TypeSwitchPage, Page: "history"})
	assert.Equal(t, TypeRender, out.Type)
	assert.Equal(t, "history", out.Page)
	assert.Contains(t, out.HTML, "a.txt, b.txt")
	assert.Contains(t, out.HTML, s.Panel().AssetURI("style.css"))
	assert.Equal(t, PageHistory, s.Panel().Page())

	out = roundTrip(t, conn, Message{Type: TypeSwitchPage, Page: "settings"})
	assert.Contains(t, out.HTML, "gpt-4o")

	out = roundTrip(t, conn, Message{Type: TypeSwitchPage, Page: "nowhere"})
	assert.Equal(t, TypeError, out.Type)
	assert.Equal(t, PageSettings, s.Panel().Page())

	out = roundTrip(t, conn, Message{Type: "bogus"})
	assert.Equal(t, TypeError, out.Type)
	assert.Contains(t, out.Error, "bogus")

	out = roundTrip(t, conn, Message{Type: TypePrompt, Text: "make it print"})
	assert.Equal(t, TypeRender, out.Type)
	assert.Equal(t, "chat", out.Page)
	assert.Contains(t, out.HTML, "<strong>fmt</strong>")

	out = roundTrip(t, conn, Message{Type: TypeApply})
	assert.Equal(t, TypeResult, out.Type)
	assert.True(t, out.OK)
	require.NotNil(t, out.Summary)
	assert.Equal(t, []string{"a.txt"}, out.Summary.Modified)
	assert.Equal(t, []string{"Use **fmt** here."}, actions.applied)

	var render Outbound
	require.NoError(t, conn.ReadJSON(&render))
	assert.Equal(t, "changes", render.Page)

	out = roundTrip(t, conn, Message{Type: TypeFormat, Path: "/p/a.go"})
	assert.Equal(t, Outbound{Type: TypeResult, Request: TypeFormat, OK: true}, out)

	out = roundTrip(t, conn, Message{Type: TypeStopDebug})
	assert.False(t, out.OK)

	out = roundTrip(t, conn, Message{Type: TypeStartDebug, Folder: "/p"})
	assert.Equal(t, TypeError, out.Type)
}

func TestDisposeClosesConnections(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn := dial(t, s, srv)
	roundTrip(t, conn, Message{Type: TypeSwitchPage, Page: "chat"})

	s.Dispose()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestSocketNeedsPanelToken(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	defer s.Dispose()
	p := s.Panel()

	for _, query := range []string{"", "?token=wrong"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+query, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+p.nonce, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRejectsForeignHost(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	defer s.Dispose()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Host = "attacker.example:80"
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.True(t, isLoopback("127.0.0.1:8080"))
	assert.True(t, isLoopback("[::1]:8080"))
	assert.True(t, isLoopback("localhost"))
	assert.False(t, isLoopback("rebound.example:8080"))
}

func TestServeStopsWithContext(t *testing.T) {
	s := NewShell(&fakeActions{}, Options{})
	srv := httptest.NewUnstartedServer(nil)
	ln := srv.Listener

	p := s.Panel()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.True(t, p.Disposed())
}
