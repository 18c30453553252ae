//go:build unix

package notify

import (
	"fmt"
	"log/syslog"

	"fimon/internal/fim"
)

// SyslogSink forwards summaries to the local syslog daemon. Quiet scans are
// not forwarded; syslog is for events an operator should see.
type SyslogSink struct {
	writer *syslog.Writer
}

var _ fim.NotificationSink = (*SyslogSink)(nil)

// NewSyslogSink connects to the local syslog daemon.
func NewSyslogSink() (*SyslogSink, error) {
	w, err := syslog.New(syslog.LOG_WARNING|syslog.LOG_DAEMON, "fimon")
	if err != nil {
		return nil, fmt.Errorf("connecting to syslog: %w", err)
	}
	return &SyslogSink{writer: w}, nil
}

func (s *SyslogSink) Name() string {
	return "syslog"
}

func (s *SyslogSink) Notify(summary fim.NotifySummary) error {
	if summary.Quiet() {
		return nil
	}
	msg := Subject(summary)
	if summary.SignatureErrorCount > 0 {
		return s.writer.Err(msg)
	}
	return s.writer.Warning(msg)
}

// Close releases the syslog connection.
func (s *SyslogSink) Close() error {
	return s.writer.Close()
}
