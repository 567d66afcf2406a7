package smssvc

import (
	"fmt"
	"log"
	"sync"

	"github.com/trezcool/kahawa/core"
)

var (
	SentMessages = make([]core.SMSMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	from          string
	disableOutput bool
}

var _ core.SMSService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.SMSService {
	return &consoleService{from: conf.Twilio.PhoneNumber}
}

func (svc consoleService) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.SMSMessage) {
	if msg.HasRecipient() && msg.HasContent() {
		if !svc.disableOutput {
			log.Println(fmt.Sprintf("SMS From: %s\r\nTo: %s\r\n\r\n%s", svc.from, msg.To, msg.Body))
		}
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

type consoleServiceMock struct {
	consoleService
}

func NewConsoleServiceMock(conf *core.Config) core.SMSService {
	return &consoleServiceMock{
		consoleService: consoleService{from: conf.Twilio.PhoneNumber, disableOutput: true},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.SMSMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}
