package fim

import "time"

// FileMetadata is everything the scanner learns about one regular file:
// the content fingerprint plus the filesystem attributes used for change
// detection. Path is the absolute path and acts as the unique key.
type FileMetadata struct {
	Path          string
	Hash          string // lowercase hex SHA-256; empty when acquisition failed
	Size          uint64
	MtimeSeconds  int64 // seconds since epoch, UTC; sub-second precision dropped
	UID           uint32
	GID           uint32
	Mode          uint32 // raw st_mode bits
	Device        uint64
	Inode         uint64
	HardlinkCount uint64
	Permissions   uint32 // portable rwx bits for owner/group/other
	Owner         string // resolved name; empty when lookup failed
	Group         string
	ErrorReason   string // set when Hash is empty
}

// FileRecord is a FileMetadata plus scan bookkeeping as persisted in the
// baseline. Records are created by the reconciler and mutated only there.
type FileRecord struct {
	FileMetadata

	Status         FileStatus
	UpdatedAt      time.Time
	LastChecked    time.Time
	ScannerVersion string
	Signature      string // HMAC-SHA-256 hex over the canonical row payload
	SignatureValid bool   // recomputed by the store on read
	PreviousHash   string // baseline hash before this scan

	// Derived change flags, computed during reconciliation against the
	// baseline row. Not persisted.
	MetadataChanged    bool
	PermissionsChanged bool
	OwnerChanged       bool
	MtimeChanged       bool
	InodeChanged       bool
	SignatureMismatch  bool // baseline row failed HMAC verification
}

// HistoryEvent is one append-only row of the scan history log.
// OldStatus is HistoryStatusNone for the first observation of a path.
type HistoryEvent struct {
	ScanTime  time.Time
	FilePath  string
	OldStatus int
	NewStatus int
	OldHash   string
	NewHash   string
	Comment   string
}

// ScanSummary is the per-scan aggregate handed to the UI and the log.
// Deleted files are not part of the new state, so TotalFiles does not
// include DeletedCount.
type ScanSummary struct {
	TotalFiles   int
	ChangedCount int
	NewCount     int
	DeletedCount int
	ErrorCount   int
}

// OverallStatus collapses a summary into a single status for display.
func (s ScanSummary) OverallStatus() FileStatus {
	if s.ErrorCount > 0 {
		return StatusError
	}
	if s.ChangedCount > 0 || s.NewCount > 0 || s.DeletedCount > 0 {
		return StatusChanged
	}
	return StatusOk
}

// NotifySummary is the finer-grained aggregation dispatched to notifier
// sinks. It is computed from the reconciled records, not from the persisted
// summary, so it can split "changed" into its causes.
type NotifySummary struct {
	TotalFiles             int
	ModifiedCount          int // content hash differs from baseline
	DeletedCount           int
	SignatureErrorCount    int // baseline row failed HMAC verification
	NewCount               int
	MetaChangedCount       int
	PermissionChangedCount int
	OwnerChangedCount      int
}

// Quiet reports whether the summary carries nothing worth notifying about.
func (s NotifySummary) Quiet() bool {
	return s.ModifiedCount == 0 && s.DeletedCount == 0 && s.SignatureErrorCount == 0 &&
		s.NewCount == 0 && s.MetaChangedCount == 0 && s.PermissionChangedCount == 0 &&
		s.OwnerChangedCount == 0
}

// BuildNotifySummary aggregates reconciled records into the notifier shape.
func BuildNotifySummary(records []FileRecord) NotifySummary {
	var s NotifySummary
	s.TotalFiles = len(records)
	for i := range records {
		r := &records[i]
		switch r.Status {
		case StatusDeleted:
			s.DeletedCount++
		case StatusNew:
			s.NewCount++
		case StatusChanged:
			if r.Hash != r.PreviousHash {
				s.ModifiedCount++
			}
			if r.SignatureMismatch {
				s.SignatureErrorCount++
			}
			if r.MetadataChanged {
				s.MetaChangedCount++
			}
			if r.PermissionsChanged {
				s.PermissionChangedCount++
			}
			if r.OwnerChanged {
				s.OwnerChangedCount++
			}
		}
	}
	return s
}
