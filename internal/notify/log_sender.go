package notify

import (
	"context"

	"github.com/voicedesk/reservation-engine/pkg/logging"
)

// LogSender is the dev transport: it writes the message to the log
// instead of an SMS provider. Codes show up in plain text, so it must
// never be wired in prod.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger.Named("sms")}
}

func (s *LogSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("sms (log transport)", "to", to, "body", body)
	return nil
}
