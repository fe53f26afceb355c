package wsconn

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed      = errors.New("wsconn: socket closed")
	ErrSendTimeout = errors.New("wsconn: send timed out")
)

// Conn is the subset of *websocket.Conn the socket needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type Config struct {
	// WriteTimeout bounds every socket write and every control enqueue.
	WriteTimeout time.Duration
	// AudioQueue is the audio backlog; the oldest frame is dropped when full.
	AudioQueue int
	// ControlQueue is the backlog of frames that must not be dropped.
	ControlQueue int
	// PingInterval enables keepalive pings when > 0.
	PingInterval time.Duration
	ReadLimit    int64
}

func (c Config) withDefaults() Config {
	out := c
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 5 * time.Second
	}
	if out.AudioQueue <= 0 {
		out.AudioQueue = 128
	}
	if out.ControlQueue <= 0 {
		out.ControlQueue = 32
	}
	if out.ReadLimit <= 0 {
		out.ReadLimit = 1 << 20
	}
	return out
}

// Socket owns the write side of one websocket. A single writer goroutine
// drains two queues: control frames first, then audio. Every write carries a
// deadline and any write failure fails the socket.
//
// Reads are not serialized here; exactly one goroutine may call Read.
type Socket struct {
	ws  Conn
	cfg Config

	control    chan []byte
	audio      chan []byte
	stop       chan struct{}
	done       chan struct{}
	writerDone chan struct{}

	final     []byte
	closeOnce sync.Once
	doneOnce  sync.Once

	mu  sync.Mutex
	err error

	dropped atomic.Int64
}

func New(ws Conn, cfg Config) *Socket {
	cfg = cfg.withDefaults()
	ws.SetReadLimit(cfg.ReadLimit)
	s := &Socket{
		ws:         ws,
		cfg:        cfg,
		control:    make(chan []byte, cfg.ControlQueue),
		audio:      make(chan []byte, cfg.AudioQueue),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Done is closed once the socket is unusable.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Err reports the failure that ended the socket; nil after an orderly Close.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped counts audio frames discarded to keep the backlog bounded.
func (s *Socket) Dropped() int64 { return s.dropped.Load() }

// Read returns the next text or binary message.
func (s *Socket) Read() ([]byte, error) {
	_, data, err := s.ws.ReadMessage()
	return data, err
}

// Fail marks the socket unusable with err, typically a read failure.
func (s *Socket) Fail(err error) { s.markDone(err) }

// SendControl queues a frame that must not be dropped. If the queue stays
// full for WriteTimeout the socket is failed with ErrSendTimeout.
func (s *Socket) SendControl(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	t := time.NewTimer(s.cfg.WriteTimeout)
	defer t.Stop()
	select {
	case s.control <- frame:
		return nil
	case <-s.done:
		return ErrClosed
	case <-t.C:
		s.markDone(ErrSendTimeout)
		return ErrSendTimeout
	}
}

// SendAudio queues an audio frame without blocking, evicting the oldest
// queued frame when the backlog is full.
func (s *Socket) SendAudio(frame []byte) error {
	for {
		select {
		case <-s.done:
			return ErrClosed
		default:
		}
		select {
		case s.audio <- frame:
			return nil
		default:
		}
		select {
		case <-s.audio:
			s.dropped.Add(1)
		default:
		}
	}
}

// Close flushes queued control frames, writes final (when non-nil) and a
// close frame, then closes the connection. It is bounded by WriteTimeout.
func (s *Socket) Close(final []byte) error {
	s.closeOnce.Do(func() {
		s.final = final
		close(s.stop)
	})

	t := time.NewTimer(2*s.cfg.WriteTimeout + 100*time.Millisecond)
	defer t.Stop()
	select {
	case <-s.writerDone:
	case <-t.C:
	}
	s.markDone(nil)
	return nil
}

func (s *Socket) writeLoop() {
	defer close(s.writerDone)

	var pingC <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ping := time.NewTicker(s.cfg.PingInterval)
		defer ping.Stop()
		pingC = ping.C
	}

	for {
		// control frames preempt queued audio
		select {
		case frame := <-s.control:
			if err := s.write(frame); err != nil {
				s.markDone(err)
				return
			}
			continue
		default:
		}

		select {
		case <-s.done:
			return
		case <-s.stop:
			s.shutdown()
			return
		case frame := <-s.control:
			if err := s.write(frame); err != nil {
				s.markDone(err)
				return
			}
		case frame := <-s.audio:
			if err := s.write(frame); err != nil {
				s.markDone(err)
				return
			}
		case <-pingC:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.markDone(err)
				return
			}
		}
	}
}

func (s *Socket) shutdown() {
	if err := s.flushControl(); err != nil {
		s.markDone(err)
		return
	}
	if s.final != nil {
		if err := s.write(s.final); err != nil {
			s.markDone(err)
			return
		}
	}
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.cfg.WriteTimeout))
	s.markDone(nil)
}

func (s *Socket) flushControl() error {
	for {
		select {
		case frame := <-s.control:
			if err := s.write(frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Socket) write(frame []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, frame)
}

func (s *Socket) markDone(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		_ = s.ws.Close()
		close(s.done)
	})
}
