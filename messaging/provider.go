package messaging

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Provider sends a text message and reports its delivery status.
type Provider interface {
	Send(ctx context.Context, to, body string) (sid, status string, err error)
	Status(ctx context.Context, sid string) (string, error)
}

// Message statuses after which polling stops.
var terminalStatuses = map[string]bool{
	"delivered":   true,
	"undelivered": true,
	"failed":      true,
	"canceled":    true,
	"read":        true,
}

const StatusDelivered = "delivered"

func IsTerminal(status string) bool {
	return terminalStatuses[status]
}

// TwilioProvider sends SMS through the Twilio REST API.
type TwilioProvider struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioProvider(accountSID, authToken, from string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{client: client, from: from}
}

func (p *TwilioProvider) Send(ctx context.Context, to, body string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(body)

	msg, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return "", "", errors.Wrapf(err, "send to %s", to)
	}
	if msg.Sid == nil {
		return "", "", errors.New("twilio returned a message without sid")
	}
	return *msg.Sid, deref(msg.Status), nil
}

func (p *TwilioProvider) Status(ctx context.Context, sid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := p.client.Api.FetchMessage(sid, &openapi.FetchMessageParams{})
	if err != nil {
		return "", errors.Wrapf(err, "fetch message %s", sid)
	}
	return deref(msg.Status), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
