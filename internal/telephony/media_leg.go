package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gorilla/websocket"
)

var ErrStreamStopped = errors.New("telephony: media stream stopped before start")

// MediaStreamLeg is the caller leg of a Twilio bidirectional media stream.
type MediaStreamLeg struct {
	sock *wsconn.Socket
	ctrl CallController
	log  *slog.Logger

	events  chan calls.Event
	stopped atomic.Bool

	mu        sync.Mutex
	callSID   string
	streamSID string
	readErr   error
}

var _ calls.CallerLeg = (*MediaStreamLeg)(nil)

func NewMediaStreamLeg(sock *wsconn.Socket, ctrl CallController, l *slog.Logger) *MediaStreamLeg {
	if l == nil {
		l = slog.Default()
	}
	return &MediaStreamLeg{
		sock:   sock,
		ctrl:   ctrl,
		log:    l,
		events: make(chan calls.Event, 16),
	}
}

// AwaitStart reads frames until Twilio's start frame, then starts delivering
// events. The start event is the first one seen on Events.
func (l *MediaStreamLeg) AwaitStart(ctx context.Context) (calls.CallStarted, error) {
	stop := context.AfterFunc(ctx, func() { l.sock.Fail(ctx.Err()) })
	defer stop()

	for {
		raw, err := l.sock.Read()
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return calls.CallStarted{}, cerr
			}
			return calls.CallStarted{}, err
		}
		ev, err := DecodeFrame(raw)
		if err != nil {
			l.log.Warn("dropping media stream frame", "err", err)
			continue
		}
		switch e := ev.(type) {
		case calls.CallStarted:
			l.setIDs(e)
			l.events <- e
			go l.readLoop()
			return e, nil
		case calls.CallStopped:
			l.stopped.Store(true)
			return calls.CallStarted{}, ErrStreamStopped
		case nil:
		default:
			l.log.Debug("dropping frame received before start")
		}
	}
}

func (l *MediaStreamLeg) readLoop() {
	defer close(l.events)
	for {
		raw, err := l.sock.Read()
		if err != nil {
			l.setReadErr(l.classify(err))
			return
		}
		ev, err := DecodeFrame(raw)
		if err != nil {
			l.log.Warn("dropping media stream frame", "err", err)
			continue
		}
		switch e := ev.(type) {
		case nil:
			continue
		case calls.CallStarted:
			l.setIDs(e)
		case calls.CallStopped:
			l.stopped.Store(true)
		}
		select {
		case l.events <- ev:
		case <-l.sock.Done():
			l.log.Debug("dropping event after stream closed", "event", fmt.Sprintf("%T", ev))
			return
		}
	}
}

// classify maps a read error to the leg's close cause; nil is orderly.
func (l *MediaStreamLeg) classify(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		l.stopped.Store(true)
		return nil
	}
	if l.stopped.Load() {
		// Twilio may drop the socket right after its stop frame.
		return nil
	}
	l.sock.Fail(err)
	return l.sock.Err()
}

func (l *MediaStreamLeg) Events() <-chan calls.Event { return l.events }

func (l *MediaStreamLeg) SendAudio(payload string) error {
	frame, err := encodeMedia(l.StreamSID(), payload)
	if err != nil {
		return err
	}
	return legErr(l.sock.SendAudio(frame))
}

// Close ends the stream. Unless Twilio already stopped it, a stop frame is
// written before the close frame.
func (l *MediaStreamLeg) Close() error {
	var final []byte
	if sid := l.StreamSID(); sid != "" && !l.stopped.Load() {
		final, _ = encodeStop(sid)
	}
	return l.sock.Close(final)
}

func (l *MediaStreamLeg) Err() error {
	l.mu.Lock()
	err := l.readErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.sock.Err()
}

// Apologize speaks message on the call through the call controller and
// hangs up. It needs only the call sid from the start frame.
func (l *MediaStreamLeg) Apologize(ctx context.Context, message string) error {
	if l.ctrl == nil {
		return errors.New("telephony: call controller not configured")
	}
	return l.ctrl.EndCall(ctx, l.CallSID(), message)
}

func (l *MediaStreamLeg) CallSID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callSID
}

func (l *MediaStreamLeg) StreamSID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streamSID
}

func (l *MediaStreamLeg) setIDs(e calls.CallStarted) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.CallSID != "" {
		l.callSID = e.CallSID
	}
	if e.StreamSID != "" {
		l.streamSID = e.StreamSID
	}
}

func (l *MediaStreamLeg) setReadErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// legErr reports a send on a finished socket as calls.ErrLegClosed.
func legErr(err error) error {
	if errors.Is(err, wsconn.ErrClosed) {
		return fmt.Errorf("%w: %w", calls.ErrLegClosed, err)
	}
	return err
}
