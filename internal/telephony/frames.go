package telephony

import (
	"encoding/json"
	"errors"
	"fmt"

	"clinic-voice-bridge/internal/calls"
)

// Twilio media stream frames.
// Ref: https://www.twilio.com/docs/voice/media-streams/websocket-messages

var (
	ErrMalformedFrame = errors.New("telephony: malformed media stream frame")
	ErrUnknownFrame   = errors.New("telephony: unknown media stream event")
)

type streamFrame struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid,omitempty"`
	Start     *startFrame  `json:"start,omitempty"`
	Media     *mediaFrame  `json:"media,omitempty"`
	Mark      *markFrame   `json:"mark,omitempty"`
	Stop      *stopPayload `json:"stop,omitempty"`
}

type startFrame struct {
	AccountSID       string            `json:"accountSid"`
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaFrame struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type markFrame struct {
	Name string `json:"name"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// DecodeFrame turns one inbound frame into a session event. It returns
// (nil, nil) for frames that are valid but carry nothing for the session.
func DecodeFrame(raw []byte) (calls.Event, error) {
	var f streamFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Event {
	case "media":
		if f.Media == nil || f.Media.Payload == "" {
			return nil, fmt.Errorf("%w: media without payload", ErrMalformedFrame)
		}
		return calls.AudioChunk{Payload: f.Media.Payload}, nil
	case "start":
		if f.Start == nil {
			return nil, fmt.Errorf("%w: start without body", ErrMalformedFrame)
		}
		streamSID := f.Start.StreamSID
		if streamSID == "" {
			streamSID = f.StreamSID
		}
		return calls.CallStarted{
			CallSID:   f.Start.CallSID,
			StreamSID: streamSID,
			Params:    f.Start.CustomParameters,
		}, nil
	case "stop":
		return calls.CallStopped{}, nil
	case "connected", "mark", "dtmf":
		return nil, nil
	case "":
		return nil, fmt.Errorf("%w: missing event tag", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Event)
	}
}

func encodeMedia(streamSID, payload string) ([]byte, error) {
	return json.Marshal(streamFrame{
		Event:     "media",
		StreamSID: streamSID,
		Media:     &mediaFrame{Payload: payload},
	})
}

func encodeStop(streamSID string) ([]byte, error) {
	return json.Marshal(streamFrame{Event: "stop", StreamSID: streamSID})
}
