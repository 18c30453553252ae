//go:build !unix

package notify

import (
	"fmt"

	"fimon/internal/fim"
)

// SyslogSink is unavailable on platforms without a syslog daemon.
type SyslogSink struct{}

var _ fim.NotificationSink = (*SyslogSink)(nil)

func NewSyslogSink() (*SyslogSink, error) {
	return nil, fmt.Errorf("syslog sink is not supported on this platform")
}

func (s *SyslogSink) Name() string { return "syslog" }

func (s *SyslogSink) Notify(_ fim.NotifySummary) error { return nil }

func (s *SyslogSink) Close() error { return nil }
