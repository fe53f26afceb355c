package telephony

import (
	"net/http"
	"strings"
	"time"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallStatus: r.PostFormValue("CallStatus"),
	}, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

// ToInboundCallRequest uses routingKey when set, else the dialed number.
func (f TwilioInboundForm) ToInboundCallRequest(routingKey string, occurredAt time.Time) InboundCallRequest {
	key := strings.TrimSpace(routingKey)
	if key == "" {
		key = f.To
	}
	return InboundCallRequest{
		RoutingKey: key,
		CallSID:    f.CallSid,
		From:       f.From,
		To:         f.To,
		OccurredAt: occurredAt,
	}
}
