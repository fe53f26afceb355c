package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gorilla/websocket"
)

// Leg is the agent leg over one realtime API websocket.
//
// Every outbound frame goes through the socket's control queue so appends,
// commits and tool outputs reach the provider in the order they were sent.
// A queue that stays full past the write timeout fails the leg.
type Leg struct {
	sock   *wsconn.Socket
	voice  string
	format string
	log    *slog.Logger

	events chan calls.Event

	mu      sync.Mutex
	readErr error
}

var _ calls.AgentLeg = (*Leg)(nil)

func newLeg(sock *wsconn.Socket, voice, format string, l *slog.Logger) *Leg {
	leg := &Leg{
		sock:   sock,
		voice:  voice,
		format: format,
		log:    l,
		events: make(chan calls.Event, 16),
	}
	go leg.readLoop()
	return leg
}

func (l *Leg) readLoop() {
	defer close(l.events)
	for {
		raw, err := l.sock.Read()
		if err != nil {
			l.setReadErr(l.classify(err))
			return
		}
		ev, err := DecodeServerEvent(raw)
		if err != nil {
			var perr *ServerError
			if errors.As(err, &perr) {
				l.log.Warn("realtime provider error", "code", perr.Code, "error_type", perr.Type, "message", perr.Message)
			} else {
				l.log.Warn("dropping realtime event", "err", err)
			}
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case l.events <- ev:
		case <-l.sock.Done():
			l.log.Debug("dropping realtime event after close", "event", fmt.Sprintf("%T", ev))
			return
		}
	}
}

func (l *Leg) classify(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	l.sock.Fail(err)
	return l.sock.Err()
}

func (l *Leg) Events() <-chan calls.Event { return l.events }

func (l *Leg) Configure(cfg calls.AgentConfig) error {
	msg, err := encodeSessionUpdate(cfg, l.voice, l.format)
	if err != nil {
		return err
	}
	return l.sendRaw(msg)
}

func (l *Leg) SendAudio(payload string) error {
	return l.send(audioAppend{Type: typeAudioAppend, Audio: payload})
}

// CommitAndRespond closes the input buffer and asks for a response.
func (l *Leg) CommitAndRespond() error {
	if err := l.send(bareEvent{Type: typeAudioCommit}); err != nil {
		return err
	}
	return l.send(bareEvent{Type: typeResponseNew})
}

// SendToolResult returns a function call output and asks the model to
// continue speaking.
func (l *Leg) SendToolResult(callID string, res booking.Result) error {
	msg, err := encodeToolOutput(callID, res)
	if err != nil {
		return err
	}
	if err := l.sendRaw(msg); err != nil {
		return err
	}
	return l.send(bareEvent{Type: typeResponseNew})
}

func (l *Leg) Close() error { return l.sock.Close(nil) }

func (l *Leg) Err() error {
	l.mu.Lock()
	err := l.readErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.sock.Err()
}

func (l *Leg) send(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.sendRaw(msg)
}

// sendRaw reports a send on a finished socket as calls.ErrLegClosed.
func (l *Leg) sendRaw(msg []byte) error {
	err := l.sock.SendControl(msg)
	if errors.Is(err, wsconn.ErrClosed) {
		return fmt.Errorf("%w: %w", calls.ErrLegClosed, err)
	}
	return err
}

func (l *Leg) setReadErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}
