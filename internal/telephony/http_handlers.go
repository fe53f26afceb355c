package telephony

import (
	"net/http"
	"time"

	"clinic-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts the Twilio voice webhook to internal types,
// delegates routing to the provider, and writes TwiML.
//
// The routing key is the `tenant` query parameter when present, else the
// dialed number.
type TwilioWebhookHandler struct {
	Provider Provider
	Now      func() time.Time
}

func (h TwilioWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "telephony provider not configured"})
		return
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	in := form.ToInboundCallRequest(c.Query("tenant"), h.Now())
	res, err := h.Provider.HandleInboundCall(c.Request.Context(), in)
	if err != nil {
		log.Error("inbound call routing failed", "call_sid", in.CallSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		return
	}

	doc, err := RenderTwiML(res)
	if err != nil {
		log.Error("twiml render failed", "call_sid", in.CallSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	log.Info("inbound call routed",
		"call_sid", in.CallSID,
		"routing_key", in.RoutingKey,
		"tenant_id", res.TenantID,
		"action", res.Action,
		"reason", res.Reason,
	)
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}
