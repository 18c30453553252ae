// Package notify implements the notification sinks a scan summary is
// dispatched to: log, syslog, email, telegram, and prometheus metrics.
package notify

import (
	"fmt"
	"strings"

	"fimon/internal/fim"
)

// Subject returns the one-line headline for a summary.
func Subject(s fim.NotifySummary) string {
	if s.Quiet() {
		return fmt.Sprintf("fimon: no changes (%d files)", s.TotalFiles)
	}
	if s.SignatureErrorCount > 0 {
		return fmt.Sprintf("fimon: ALERT, %d signature errors detected", s.SignatureErrorCount)
	}
	return fmt.Sprintf("fimon: changes detected (%d files)", s.TotalFiles)
}

// Body renders the summary as human-readable lines, omitting zero counts.
func Body(s fim.NotifySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "files checked: %d\n", s.TotalFiles)

	lines := []struct {
		label string
		count int
	}{
		{"modified", s.ModifiedCount},
		{"new", s.NewCount},
		{"deleted", s.DeletedCount},
		{"metadata changed", s.MetaChangedCount},
		{"permissions changed", s.PermissionChangedCount},
		{"owner changed", s.OwnerChangedCount},
		{"signature errors", s.SignatureErrorCount},
	}
	for _, l := range lines {
		if l.count > 0 {
			fmt.Fprintf(&b, "%s: %d\n", l.label, l.count)
		}
	}
	return b.String()
}
