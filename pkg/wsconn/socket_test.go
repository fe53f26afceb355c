package wsconn

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   []string
	controls []int
	writeErr error

	hold     chan struct{}
	entered  chan struct{}
	closedCh chan struct{}
	once     sync.Once
	reads    chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		entered:  make(chan struct{}, 64),
		closedCh: make(chan struct{}),
		reads:    make(chan []byte, 8),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.reads:
		return websocket.TextMessage, b, nil
	case <-f.closedCh:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.entered <- struct{}{}
	f.mu.Lock()
	hold, err := f.hold, f.writeErr
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-f.closedCh:
			return errors.New("use of closed connection")
		}
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, string(data))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closedCh) })
	return nil
}

func (f *fakeConn) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closedCh:
		return true
	default:
		return false
	}
}

func TestSocket_ControlPreemptsQueuedAudio(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	conn.hold = release
	s := New(conn, Config{WriteTimeout: time.Second})
	t.Cleanup(func() { _ = s.Close(nil) })

	require.NoError(t, s.SendAudio([]byte("a0")))
	<-conn.entered
	require.NoError(t, s.SendAudio([]byte("a1")))
	require.NoError(t, s.SendAudio([]byte("a2")))
	require.NoError(t, s.SendControl([]byte("c1")))
	close(release)

	require.Eventually(t, func() bool { return len(conn.written()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a0", "c1", "a1", "a2"}, conn.written())
}

func TestSocket_DropsOldestAudioWhenFull(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	conn.hold = release
	s := New(conn, Config{WriteTimeout: time.Second, AudioQueue: 2})
	t.Cleanup(func() { _ = s.Close(nil) })

	require.NoError(t, s.SendAudio([]byte("a0")))
	<-conn.entered
	for _, f := range []string{"a1", "a2", "a3"} {
		require.NoError(t, s.SendAudio([]byte(f)))
	}
	assert.EqualValues(t, 1, s.Dropped())
	close(release)

	require.Eventually(t, func() bool { return len(conn.written()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a0", "a2", "a3"}, conn.written())
}

func TestSocket_WriteErrorFailsSocket(t *testing.T) {
	conn := newFakeConn()
	boom := errors.New("broken pipe")
	conn.writeErr = boom
	s := New(conn, Config{WriteTimeout: time.Second})

	require.NoError(t, s.SendAudio([]byte("a0")))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("socket did not fail")
	}
	assert.ErrorIs(t, s.Err(), boom)
	assert.ErrorIs(t, s.SendAudio([]byte("a1")), ErrClosed)
	assert.ErrorIs(t, s.SendControl([]byte("c1")), ErrClosed)
	assert.True(t, conn.isClosed())
}

func TestSocket_StalledControlQueueTimesOut(t *testing.T) {
	conn := newFakeConn()
	conn.hold = make(chan struct{})
	s := New(conn, Config{WriteTimeout: 50 * time.Millisecond, ControlQueue: 1})

	require.NoError(t, s.SendControl([]byte("c0")))
	<-conn.entered
	require.NoError(t, s.SendControl([]byte("c1")))

	err := s.SendControl([]byte("c2"))
	require.ErrorIs(t, err, ErrSendTimeout)
	assert.ErrorIs(t, s.Err(), ErrSendTimeout)
	assert.True(t, conn.isClosed())
}

func TestSocket_CloseFlushesControlThenFinalFrame(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	conn.hold = release
	s := New(conn, Config{WriteTimeout: time.Second})

	require.NoError(t, s.SendAudio([]byte("a0")))
	<-conn.entered
	require.NoError(t, s.SendControl([]byte("c1")))

	closed := make(chan struct{})
	go func() {
		_ = s.Close([]byte("stop"))
		close(closed)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not return")
	}
	assert.Equal(t, []string{"a0", "c1", "stop"}, conn.written())
	assert.Contains(t, conn.controls, websocket.CloseMessage)
	assert.NoError(t, s.Err())
	assert.True(t, conn.isClosed())
	assert.NoError(t, s.Close(nil), "close is idempotent")
}

func TestSocket_FailRecordsReadError(t *testing.T) {
	conn := newFakeConn()
	s := New(conn, Config{})
	conn.reads <- []byte(`{"event":"media"}`)

	b, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"media"}`, string(b))

	boom := errors.New("read: connection reset")
	s.Fail(boom)
	assert.ErrorIs(t, s.Err(), boom)
	_, err = s.Read()
	assert.Error(t, err)
}
