package notify

import (
	"fimon/internal/fim"
)

// LogSink writes scan summaries to the application log. Quiet scans log at
// info level; signature errors escalate to error level so they stand out in
// aggregated logs.
type LogSink struct {
	logger fim.Logger
}

var _ fim.NotificationSink = (*LogSink)(nil)

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger fim.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Notify(summary fim.NotifySummary) error {
	args := []any{
		"total", summary.TotalFiles,
		"modified", summary.ModifiedCount,
		"new", summary.NewCount,
		"deleted", summary.DeletedCount,
		"metaChanged", summary.MetaChangedCount,
		"permissionsChanged", summary.PermissionChangedCount,
		"ownerChanged", summary.OwnerChangedCount,
		"signatureErrors", summary.SignatureErrorCount,
	}
	switch {
	case summary.SignatureErrorCount > 0:
		s.logger.Error("scan finished with signature errors", args...)
	case summary.Quiet():
		s.logger.Info("scan finished, no changes", args...)
	default:
		s.logger.Warn("scan finished with changes", args...)
	}
	return nil
}
