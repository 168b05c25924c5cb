package notify

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends SMS through the Twilio REST API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

// NewTwilio builds a client for account sid.
func NewTwilio(sid, auth, from string) *Twilio {
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: sid,
			Password: auth,
		}),
		from: from,
	}
}

// Name returns "twilio".
func (t *Twilio) Name() string { return "twilio" }

// Send creates one message. The SDK call is not cancellable, so ctx is
// only checked up front.
func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp.Sid == nil {
		return "", errors.New("twilio: empty message sid")
	}
	return *resp.Sid, nil
}
