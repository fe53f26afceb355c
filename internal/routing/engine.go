package routing

import (
	"context"
	"errors"

	"clinic-voice-bridge/internal/telephony"
)

// NewEngineAdapter adapts the Decision-based RoutingEngine into the
// provider-facing telephony.Router interface.
//
// This allows provider adapters to stay stable while routing evolves.
func NewEngineAdapter(engine *RoutingEngine) telephony.Router {
	return engineAdapter{engine: engine}
}

type engineAdapter struct {
	engine *RoutingEngine
}

func (a engineAdapter) RouteInboundCall(ctx context.Context, req telephony.InboundCallRequest) (telephony.InboundCallResult, error) {
	if a.engine == nil {
		return telephony.InboundCallResult{}, errors.New("routing: engine is nil")
	}

	d, err := a.engine.Route(ctx, RouteInput{
		RoutingKey: req.RoutingKey,
		CallSID:    req.CallSID,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return telephony.InboundCallResult{}, err
	}

	res := telephony.InboundCallResult{TenantID: d.TenantID, RoutingKey: d.RoutingKey, Reason: d.Reason}
	switch d.Action {
	case ActionStream:
		res.Action = telephony.InboundCallActionStream
		res.Greeting = d.Greeting
		res.StreamURL = d.StreamURL
		res.Parameters = d.Parameters
	case ActionReject:
		res.Action = telephony.InboundCallActionReject
		res.Message = d.Message
	case ActionHangup:
		res.Action = telephony.InboundCallActionHangup
	default:
		return telephony.InboundCallResult{}, errors.New("routing: unknown decision action")
	}

	return res, nil
}
