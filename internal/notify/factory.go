package notify

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"fimon/internal/config"
	"fimon/internal/fim"
)

// NewSinksFromConfig builds the configured notification sinks.
func NewSinksFromConfig(cfgs []config.NotifyConfig, logger fim.Logger) ([]fim.NotificationSink, error) {
	var sinks []fim.NotificationSink
	for _, cfg := range cfgs {
		sink, err := newSink(cfg, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func newSink(cfg config.NotifyConfig, logger fim.Logger) (fim.NotificationSink, error) {
	switch cfg.Type {
	case "log", "":
		return NewLogSink(logger), nil
	case "syslog":
		return NewSyslogSink()
	case "email":
		if cfg.SMTPAddr == "" || cfg.From == "" || len(cfg.To) == 0 {
			return nil, fmt.Errorf("email sink requires smtp_addr, from, and to")
		}
		return NewEmailSink(cfg.SMTPAddr, cfg.From, cfg.To), nil
	case "telegram":
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return nil, fmt.Errorf("telegram sink requires bot_token and chat_id")
		}
		return NewTelegramSink(cfg.BotToken, cfg.ChatID), nil
	case "prometheus":
		return NewPrometheusSink(prometheus.NewRegistry(), cfg.ListenAddr), nil
	default:
		return nil, fmt.Errorf("unknown notify type: %q", cfg.Type)
	}
}
