package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"clinic-voice-bridge/internal/calls"
	"clinic-voice-bridge/pkg/wsconn"

	"github.com/gorilla/websocket"
)

type Config struct {
	URL         string
	APIKey      string
	Model       string
	Voice       string
	AudioFormat string

	HandshakeTimeout time.Duration
	Socket           wsconn.Config
}

// Dialer opens agent legs against the OpenAI realtime API.
type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

var _ calls.AgentDialer = (*Dialer)(nil)

func NewDialer(cfg Config, l *slog.Logger) (*Dialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("realtime: url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("realtime: api key is required")
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "g711_ulaw"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Socket.ControlQueue <= 0 {
		// audio appends share the control queue
		cfg.Socket.ControlQueue = 256
	}
	if l == nil {
		l = slog.Default()
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: l,
	}, nil
}

func (d *Dialer) Dial(ctx context.Context) (calls.AgentLeg, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	if d.cfg.Model != "" {
		q := u.Query()
		q.Set("model", d.cfg.Model)
		u.RawQuery = q.Encode()
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+d.cfg.APIKey)
	h.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := d.dialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	return newLeg(wsconn.New(ws, d.cfg.Socket), d.cfg.Voice, d.cfg.AudioFormat, d.log), nil
}
