package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"fimon/internal/fim"
)

// EmailSink mails scan summaries to a list of recipients via an SMTP relay.
// Quiet scans are not mailed.
type EmailSink struct {
	addr string // host:port of the relay
	from string
	to   []string

	// send is swapped in tests.
	send func(addr string, from string, to []string, msg []byte) error
}

var _ fim.NotificationSink = (*EmailSink)(nil)

// NewEmailSink creates a sink delivering through the relay at addr. The
// relay is assumed to accept unauthenticated mail from this host.
func NewEmailSink(addr, from string, to []string) *EmailSink {
	return &EmailSink{
		addr: addr,
		from: from,
		to:   to,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (s *EmailSink) Name() string {
	return "email"
}

func (s *EmailSink) Notify(summary fim.NotifySummary) error {
	if summary.Quiet() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(summary))
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(Body(summary), "\n", "\r\n"))

	if err := s.send(s.addr, s.from, s.to, []byte(b.String())); err != nil {
		return fmt.Errorf("sending mail via %s: %w", s.addr, err)
	}
	return nil
}
