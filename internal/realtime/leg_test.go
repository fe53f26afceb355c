package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	headers chan http.Header
	query   chan string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		conns:   make(chan *websocket.Conn, 1),
		headers: make(chan http.Header, 1),
		query:   make(chan string, 1),
	}
	upgrader := websocket.Upgrader{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p.headers <- r.Header.Clone()
		p.query <- r.URL.Query().Get("model")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		p.conns <- ws
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) url() string { return "ws" + strings.TrimPrefix(p.srv.URL, "http") }

func (p *fakeProvider) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-p.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("provider never accepted")
		return nil
	}
}

func readType(t *testing.T, c *websocket.Conn) (string, []byte) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw, &head))
	return head.Type, raw
}

func dial(t *testing.T, p *fakeProvider, key string) (calls.AgentLeg, error) {
	t.Helper()
	return loggedDial(t, p, key, nil)
}

func loggedDial(t *testing.T, p *fakeProvider, key string, l *slog.Logger) (calls.AgentLeg, error) {
	t.Helper()
	d, err := NewDialer(Config{URL: p.url(), APIKey: key, Model: "gpt-4o-realtime-preview", Voice: "alloy"}, l)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.Dial(ctx)
}

func TestDialer_AuthenticatesAndSelectsModel(t *testing.T) {
	p := newFakeProvider(t)
	leg, err := dial(t, p, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = leg.Close() })

	h := <-p.headers
	assert.Equal(t, "realtime=v1", h.Get("OpenAI-Beta"))
	assert.Equal(t, "gpt-4o-realtime-preview", <-p.query)
}

func TestDialer_RejectedHandshake(t *testing.T) {
	p := newFakeProvider(t)
	_, err := dial(t, p, "sk-wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewDialer_RequiresKey(t *testing.T) {
	_, err := NewDialer(Config{URL: "wss://example.com"}, nil)
	assert.Error(t, err)
}

func TestLeg_OutboundMessagesInOrder(t *testing.T) {
	p := newFakeProvider(t)
	leg, err := dial(t, p, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = leg.Close() })
	server := p.accept(t)

	require.NoError(t, leg.Configure(calls.AgentConfig{Instructions: "Be brief."}))
	require.NoError(t, leg.SendAudio("AAA"))
	require.NoError(t, leg.CommitAndRespond())
	require.NoError(t, leg.SendToolResult("call_1", booking.Result{Success: true, AppointmentID: "appt-1"}))

	typ, raw := readType(t, server)
	assert.Equal(t, "session.update", typ)
	assert.Contains(t, string(raw), `"instructions":"Be brief."`)

	typ, raw = readType(t, server)
	assert.Equal(t, "input_audio_buffer.append", typ)
	assert.Contains(t, string(raw), `"audio":"AAA"`)

	typ, _ = readType(t, server)
	assert.Equal(t, "input_audio_buffer.commit", typ)
	typ, _ = readType(t, server)
	assert.Equal(t, "response.create", typ)

	typ, raw = readType(t, server)
	assert.Equal(t, "conversation.item.create", typ)
	var item struct {
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal(raw, &item))
	assert.Equal(t, "function_call_output", item.Item.Type)
	assert.Equal(t, "call_1", item.Item.CallID)
	assert.JSONEq(t, `{"success":true,"appointmentId":"appt-1"}`, item.Item.Output)

	typ, _ = readType(t, server)
	assert.Equal(t, "response.create", typ)
}

func TestLeg_DecodesInboundEvents(t *testing.T) {
	p := newFakeProvider(t)
	leg, err := dial(t, p, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = leg.Close() })
	server := p.accept(t)

	for _, raw := range []string{
		`{"type":"session.created"}`,
		`{"type":"response.audio.delta","delta":"d1"}`,
		`{"type":`,
		`{"type":"error","error":{"code":"input_audio_buffer_commit_empty","message":"empty"}}`,
		`{"type":"response.audio.delta","delta":"d2"}`,
		`{"type":"response.function_call_arguments.done","call_id":"c1","name":"create_booking","arguments":"{}"}`,
		`{"type":"response.done"}`,
	} {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(raw)))
	}

	want := []calls.Event{
		calls.AudioChunk{Payload: "d1"},
		calls.AudioChunk{Payload: "d2"},
		calls.ToolCall{Invocation: booking.Invocation{CallID: "c1", ToolName: "create_booking", Arguments: "{}"}},
		calls.ResponseDone{},
	}
	for _, w := range want {
		select {
		case ev := <-leg.Events():
			assert.Equal(t, w, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing event %#v", w)
		}
	}

	require.NoError(t, server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	select {
	case _, ok := <-leg.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("events not closed")
	}
	assert.NoError(t, leg.Err())
}

func TestLeg_AbruptProviderDisconnectIsFailure(t *testing.T) {
	p := newFakeProvider(t)
	leg, err := dial(t, p, "sk-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = leg.Close() })
	server := p.accept(t)

	require.NoError(t, server.UnderlyingConn().Close())
	select {
	case _, ok := <-leg.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("events not closed")
	}
	assert.Error(t, leg.Err())
}

func TestLeg_SendAfterCloseIsLegClosed(t *testing.T) {
	p := newFakeProvider(t)
	leg, err := dial(t, p, "sk-test")
	require.NoError(t, err)
	p.accept(t)

	require.NoError(t, leg.Close())

	err = leg.SendAudio("AAA")
	assert.ErrorIs(t, err, calls.ErrLegClosed)
	assert.ErrorIs(t, err, wsconn.ErrClosed)
	assert.ErrorIs(t, leg.Configure(calls.AgentConfig{}), calls.ErrLegClosed)
	assert.ErrorIs(t, leg.CommitAndRespond(), calls.ErrLegClosed)
	assert.ErrorIs(t, leg.SendToolResult("call_1", booking.Result{}), calls.ErrLegClosed)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLeg_LogsEventDroppedAfterClose(t *testing.T) {
	var out lockedBuffer
	l := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newFakeProvider(t)
	leg, err := loggedDial(t, p, "sk-test", l)
	require.NoError(t, err)
	server := p.accept(t)

	// nobody drains Events, so the read loop parks on a full channel
	events := leg.Events()
	for i := 0; i < cap(events)+4; i++ {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.done"}`)))
	}
	require.Eventually(t, func() bool { return len(events) == cap(events) }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, leg.Close())
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "dropping realtime event after close")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"event":"calls.ResponseDone"`)
}
