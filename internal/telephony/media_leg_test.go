package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingController) EndCall(_ context.Context, callSID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if callSID == "" {
		return ErrNoCallSID
	}
	r.calls = append(r.calls, callSID+"|"+message)
	return r.err
}

// legPair connects a fake Twilio client to a server-side MediaStreamLeg.
func legPair(t *testing.T, ctrl CallController) (*MediaStreamLeg, *websocket.Conn) {
	t.Helper()
	return loggedLegPair(t, ctrl, nil)
}

func loggedLegPair(t *testing.T, ctrl CallController, l *slog.Logger) (*MediaStreamLeg, *websocket.Conn) {
	t.Helper()
	legs := make(chan *MediaStreamLeg, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		legs <- NewMediaStreamLeg(wsconn.New(ws, wsconn.Config{WriteTimeout: time.Second}), ctrl, l)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case leg := <-legs:
		t.Cleanup(func() { _ = leg.Close() })
		return leg, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server never upgraded")
		return nil, nil
	}
}

func sendFrame(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(raw)))
}

const startFrameJSON = `{"event":"start","streamSid":"MZ1","start":{"streamSid":"MZ1","callSid":"CA1","customParameters":{"tenant":"lakeside"}}}`

func nextEvent(t *testing.T, leg *MediaStreamLeg) (calls.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-leg.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
		return nil, false
	}
}

func TestMediaStreamLeg_AwaitStartThenRelaysInOrder(t *testing.T) {
	leg, client := legPair(t, nil)

	sendFrame(t, client, `{"event":"connected","protocol":"Call","version":"1.0.0"}`)
	sendFrame(t, client, startFrameJSON)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start, err := leg.AwaitStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CA1", start.CallSID)
	assert.Equal(t, "lakeside", start.Params["tenant"])
	assert.Equal(t, "MZ1", leg.StreamSID())

	sendFrame(t, client, `{"event":"media","media":{"payload":"p1"}}`)
	sendFrame(t, client, `{"event":"media","media":`)
	sendFrame(t, client, `{"event":"media","media":{"payload":"p2"}}`)
	sendFrame(t, client, `{"event":"stop","streamSid":"MZ1"}`)

	ev, _ := nextEvent(t, leg)
	assert.IsType(t, calls.CallStarted{}, ev)
	ev, _ = nextEvent(t, leg)
	assert.Equal(t, calls.AudioChunk{Payload: "p1"}, ev)
	ev, _ = nextEvent(t, leg)
	assert.Equal(t, calls.AudioChunk{Payload: "p2"}, ev, "malformed frame is dropped")
	ev, _ = nextEvent(t, leg)
	assert.Equal(t, calls.CallStopped{}, ev)

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_, ok := nextEvent(t, leg)
	assert.False(t, ok, "events close after the peer closes")
	assert.NoError(t, leg.Err())
}

func TestMediaStreamLeg_SendAudioWrapsMediaEnvelope(t *testing.T) {
	leg, client := legPair(t, nil)
	sendFrame(t, client, startFrameJSON)
	_, err := leg.AwaitStart(context.Background())
	require.NoError(t, err)

	require.NoError(t, leg.SendAudio("AAAA"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var got struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "media", got.Event)
	assert.Equal(t, "MZ1", got.StreamSID)
	assert.Equal(t, "AAAA", got.Media.Payload)
}

func TestMediaStreamLeg_CloseSendsStopFrame(t *testing.T) {
	leg, client := legPair(t, nil)
	sendFrame(t, client, startFrameJSON)
	_, err := leg.AwaitStart(context.Background())
	require.NoError(t, err)

	go func() { _ = leg.Close() }()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stop","streamSid":"MZ1"}`, string(raw))

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestMediaStreamLeg_AbruptDisconnectIsFailure(t *testing.T) {
	leg, client := legPair(t, nil)
	sendFrame(t, client, startFrameJSON)
	_, err := leg.AwaitStart(context.Background())
	require.NoError(t, err)
	nextEvent(t, leg)

	require.NoError(t, client.UnderlyingConn().Close())

	_, ok := nextEvent(t, leg)
	assert.False(t, ok)
	assert.Error(t, leg.Err())
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

func TestMediaStreamLeg_SendAfterCloseIsLegClosed(t *testing.T) {
	leg, client := legPair(t, nil)
	sendFrame(t, client, startFrameJSON)
	_, err := leg.AwaitStart(context.Background())
	require.NoError(t, err)

	require.NoError(t, leg.Close())
	err = leg.SendAudio("AAAA")
	assert.ErrorIs(t, err, calls.ErrLegClosed)
	assert.ErrorIs(t, err, wsconn.ErrClosed)
}

func TestMediaStreamLeg_LogsEventDroppedAfterClose(t *testing.T) {
	var out lockedBuffer
	l := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	leg, client := loggedLegPair(t, nil, l)
	sendFrame(t, client, startFrameJSON)
	_, err := leg.AwaitStart(context.Background())
	require.NoError(t, err)

	// nobody drains Events, so the read loop parks on a full channel
	for i := 0; i < cap(leg.events)+4; i++ {
		sendFrame(t, client, fmt.Sprintf(`{"event":"media","media":{"payload":"p%d"}}`, i))
	}
	require.Eventually(t, func() bool { return len(leg.Events()) == cap(leg.events) }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, leg.Close())
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "dropping event after stream closed")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"event":"calls.AudioChunk"`)
}

func TestMediaStreamLeg_AwaitStartHonorsContext(t *testing.T) {
	leg, _ := legPair(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := leg.AwaitStart(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMediaStreamLeg_StopBeforeStart(t *testing.T) {
	leg, client := legPair(t, nil)
	sendFrame(t, client, `{"event":"stop"}`)
	_, err := leg.AwaitStart(context.Background())
	assert.ErrorIs(t, err, ErrStreamStopped)
}

func TestMediaStreamLeg_ApologizeUsesCallSID(t *testing.T) {
	ctrl := &recordingController{}
	leg, client := legPair(t, ctrl)

	err := leg.Apologize(context.Background(), "sorry")
	assert.True(t, errors.Is(err, ErrNoCallSID), "no call sid before start")

	sendFrame(t, client, startFrameJSON)
	_, err = leg.AwaitStart(context.Background())
	require.NoError(t, err)

	require.NoError(t, leg.Apologize(context.Background(), "sorry"))
	assert.Equal(t, []string{"CA1|sorry"}, ctrl.calls)
}
