package telephony

import (
	"errors"
	"sort"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// RenderTwiML maps an InboundCallResult to TwiML.
func RenderTwiML(res InboundCallResult) (string, error) {
	var verbs []twiml.Element

	switch res.Action {
	case InboundCallActionStream:
		if strings.TrimSpace(res.StreamURL) == "" {
			return "", errors.New("telephony: stream_url required for stream action")
		}
		if res.Greeting != "" {
			verbs = append(verbs, &twiml.VoiceSay{Message: res.Greeting})
		}
		stream := &twiml.VoiceStream{Url: res.StreamURL}
		for _, k := range sortedKeys(res.Parameters) {
			stream.InnerElements = append(stream.InnerElements, &twiml.VoiceParameter{Name: k, Value: res.Parameters[k]})
		}
		verbs = append(verbs, &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}})
	case InboundCallActionReject:
		if res.Message != "" {
			verbs = append(verbs, &twiml.VoiceSay{Message: res.Message})
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
	case InboundCallActionHangup:
		verbs = append(verbs, &twiml.VoiceHangup{})
	default:
		return "", errors.New("telephony: unknown inbound action")
	}

	return twiml.Voice(verbs)
}

// RenderSayHangup speaks message and ends the call.
func RenderSayHangup(message string) (string, error) {
	return RenderTwiML(InboundCallResult{Action: InboundCallActionReject, Message: message})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
