package smssvc

import (
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/trezcool/kahawa/core"
)

type twilioService struct {
	client *twilio.RestClient
	from   string
	logger core.Logger
}

var _ core.SMSService = (*twilioService)(nil)

func NewTwilioService(conf *core.Config, logger core.Logger) *twilioService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: conf.Twilio.AccountSID,
		Password: conf.Twilio.AuthToken,
	})
	return &twilioService{
		client: client,
		from:   conf.Twilio.PhoneNumber,
		logger: logger,
	}
}

func (svc twilioService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if msg.HasRecipient() && msg.HasContent() {
				svc.send(*msg)
			}
		}()
	}
}

func (svc twilioService) send(msg core.SMSMessage) {
	params := new(openapi.CreateMessageParams)
	params.SetFrom(svc.from)
	params.SetTo(msg.To)
	params.SetBody(msg.Body)

	if _, err := svc.client.Api.CreateMessage(params); err != nil {
		svc.logger.Error(fmt.Sprintf("sending sms: %v", err), err)
	}
}
