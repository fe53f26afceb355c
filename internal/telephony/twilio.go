package telephony

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrNoCallSID = errors.New("telephony: call sid unknown")

// callAPI is the slice of the Twilio REST API the provider uses.
type callAPI interface {
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
	FetchAccount(sid string) (*twilioApi.ApiV2010Account, error)
}

type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
}

// TwilioProvider routes Twilio webhooks and controls live calls through the
// Twilio REST API.
type TwilioProvider struct {
	router     Router
	api        callAPI
	accountSID string
}

// NewTwilioProvider builds a provider. Without credentials the provider can
// still answer webhooks but EndCall and HealthCheck fail.
func NewTwilioProvider(router Router, creds TwilioCredentials) *TwilioProvider {
	p := &TwilioProvider{router: router, accountSID: creds.AccountSID}
	if creds.AccountSID != "" && creds.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: creds.AccountSID,
			Password: creds.AuthToken,
		})
		p.api = client.Api
	}
	return p
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	if p.api == nil {
		return errors.New("telephony: twilio credentials not configured")
	}
	return runBlocking(ctx, func() error {
		_, err := p.api.FetchAccount(p.accountSID)
		return err
	})
}

func (p *TwilioProvider) HandleInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error) {
	if p.router == nil {
		return InboundCallResult{}, errors.New("telephony: twilio router is nil")
	}
	return p.router.RouteInboundCall(ctx, req)
}

// EndCall replaces the live call's TwiML with <Say>message</Say><Hangup/>.
func (p *TwilioProvider) EndCall(ctx context.Context, callSID, message string) error {
	if strings.TrimSpace(callSID) == "" {
		return ErrNoCallSID
	}
	if p.api == nil {
		return errors.New("telephony: twilio credentials not configured")
	}
	doc, err := RenderSayHangup(message)
	if err != nil {
		return err
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)
	return runBlocking(ctx, func() error {
		_, err := p.api.UpdateCall(callSID, params)
		return err
	})
}

// runBlocking bounds a context-less SDK call by ctx. The call itself keeps
// running in the background if ctx ends first.
func runBlocking(ctx context.Context, f func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- f() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
