package telephony

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallAPI struct {
	mu      sync.Mutex
	updates map[string]string
	err     error
	block   chan struct{}
}

func (f *fakeCallAPI) UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[sid] = *params.Twiml
	return &twilioApi.ApiV2010Call{}, nil
}

func (f *fakeCallAPI) FetchAccount(string) (*twilioApi.ApiV2010Account, error) {
	return &twilioApi.ApiV2010Account{}, f.err
}

type staticRouter struct {
	res InboundCallResult
	got InboundCallRequest
}

func (r *staticRouter) RouteInboundCall(_ context.Context, req InboundCallRequest) (InboundCallResult, error) {
	r.got = req
	return r.res, nil
}

func TestTwilioProviderEndCallPushesSayHangup(t *testing.T) {
	api := &fakeCallAPI{}
	p := &TwilioProvider{api: api}

	if err := p.EndCall(context.Background(), "CA1", "We are sorry. Goodbye."); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	doc := api.updates["CA1"]
	if !strings.Contains(doc, "<Say>We are sorry. Goodbye.</Say>") || !strings.Contains(doc, "<Hangup") {
		t.Fatalf("unexpected twiml: %s", doc)
	}
}

func TestTwilioProviderEndCallRequiresCallSID(t *testing.T) {
	p := &TwilioProvider{api: &fakeCallAPI{}}
	if err := p.EndCall(context.Background(), " ", "bye"); !errors.Is(err, ErrNoCallSID) {
		t.Fatalf("expected ErrNoCallSID, got %v", err)
	}
}

func TestTwilioProviderEndCallWithoutCredentials(t *testing.T) {
	p := NewTwilioProvider(nil, TwilioCredentials{})
	if err := p.EndCall(context.Background(), "CA1", "bye"); err == nil {
		t.Fatalf("expected error without credentials")
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check error without credentials")
	}
}

func TestTwilioProviderEndCallHonorsContext(t *testing.T) {
	api := &fakeCallAPI{block: make(chan struct{})}
	defer close(api.block)
	p := &TwilioProvider{api: api}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.EndCall(ctx, "CA1", "bye"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTwilioProviderDelegatesRouting(t *testing.T) {
	r := &staticRouter{res: InboundCallResult{Action: InboundCallActionHangup}}
	p := NewTwilioProvider(r, TwilioCredentials{})
	res, err := p.HandleInboundCall(context.Background(), InboundCallRequest{RoutingKey: "k", CallSID: "CA1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Action != InboundCallActionHangup || r.got.RoutingKey != "k" {
		t.Fatalf("unexpected routing: %+v %+v", res, r.got)
	}
}
