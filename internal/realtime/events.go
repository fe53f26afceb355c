package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"clinic-voice-bridge/internal/booking"
	"clinic-voice-bridge/internal/calls"
)

// Client events sent to the realtime API.

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities        []string       `json:"modalities"`
	Instructions      string         `json:"instructions"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
	Tools             []booking.Tool `json:"tools"`
	ToolChoice        string         `json:"tool_choice"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bareEvent struct {
	Type string `json:"type"`
}

type itemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

const (
	typeSessionUpdate = "session.update"
	typeAudioAppend   = "input_audio_buffer.append"
	typeAudioCommit   = "input_audio_buffer.commit"
	typeResponseNew   = "response.create"
	typeItemCreate    = "conversation.item.create"

	typeAudioDelta   = "response.audio.delta"
	typeFunctionDone = "response.function_call_arguments.done"
	typeResponseDone = "response.done"
	typeError        = "error"
)

// Server events received from the realtime API.

var ErrMalformedEvent = errors.New("realtime: malformed server event")

// ServerError is an error event reported by the provider. It does not end
// the session.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("realtime: provider error %s: %s", e.Code, e.Message)
}

type serverEvent struct {
	Type      string       `json:"type"`
	Delta     string       `json:"delta"`
	CallID    string       `json:"call_id"`
	Name      string       `json:"name"`
	Arguments string       `json:"arguments"`
	Error     *ServerError `json:"error"`
}

// DecodeServerEvent maps one server event to a session event. Events the
// session does not act on decode to (nil, nil).
func DecodeServerEvent(raw []byte) (calls.Event, error) {
	var ev serverEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch ev.Type {
	case typeAudioDelta:
		if ev.Delta == "" {
			return nil, fmt.Errorf("%w: audio delta without payload", ErrMalformedEvent)
		}
		return calls.AudioChunk{Payload: ev.Delta}, nil
	case typeFunctionDone:
		return calls.ToolCall{Invocation: booking.Invocation{
			CallID:    ev.CallID,
			ToolName:  ev.Name,
			Arguments: ev.Arguments,
		}}, nil
	case typeResponseDone:
		return calls.ResponseDone{}, nil
	case typeError:
		if ev.Error == nil {
			return nil, &ServerError{Message: "unspecified"}
		}
		return nil, ev.Error
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return nil, nil
	}
}

func encodeSessionUpdate(cfg calls.AgentConfig, voice, format string) ([]byte, error) {
	if cfg.Voice != "" {
		voice = cfg.Voice
	}
	return json.Marshal(sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      cfg.Instructions,
			Voice:             voice,
			InputAudioFormat:  format,
			OutputAudioFormat: format,
			TurnDetection:     &turnDetection{Type: "server_vad"},
			Tools:             []booking.Tool{booking.ToolDefinition()},
			ToolChoice:        "auto",
		},
	})
}

func encodeToolOutput(callID string, res booking.Result) ([]byte, error) {
	out, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itemCreate{
		Type: typeItemCreate,
		Item: conversationItem{Type: "function_call_output", CallID: callID, Output: string(out)},
	})
}
