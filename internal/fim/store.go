package fim

// Store is the persistence contract for the baseline and the history log.
// A reconciliation performs many UpsertRecord and AppendHistory calls inside
// one Begin/Commit. Implementations must be serializable with respect to
// concurrent scans: a second scan started before the first commits observes
// either the pre- or post-state, never an interleaving.
//
// A Store handle is not shared across goroutines; each worker opens its own
// handle against the same underlying database.
type Store interface {
	Begin() error
	Commit() error
	Rollback()

	// LoadBaseline returns every persisted record, ordered by path.
	LoadBaseline() ([]FileRecord, error)

	// LoadRecord returns the record for path, or ErrRecordNotFound.
	LoadRecord(path string) (FileRecord, error)

	// UpsertRecord inserts or replaces the record keyed by its path.
	// The row signature is recomputed by the store on write.
	UpsertRecord(rec *FileRecord) error

	// ClearAll removes the baseline and the history log.
	ClearAll() error

	// AppendHistory appends one write-once history event.
	AppendHistory(event *HistoryEvent) error

	// LoadHistory returns up to limit events, most recent first.
	LoadHistory(limit int) ([]HistoryEvent, error)

	// SetHmacKey installs the key used for row signatures. An empty key
	// disables verification: every row reads back as signature-valid.
	SetHmacKey(key []byte)

	Close() error
}
