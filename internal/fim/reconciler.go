package fim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reconciler joins freshly scanned metadata with the persisted baseline,
// classifies every entry, and writes the merged state plus history through
// the Store inside a single transaction.
type Reconciler struct {
	store          Store
	clock          Clock
	logger         Logger
	scannerVersion string
}

// NewReconciler creates a Reconciler writing through the given store.
func NewReconciler(store Store, clock Clock, logger Logger, scannerVersion string) *Reconciler {
	return &Reconciler{
		store:          store,
		clock:          clock,
		logger:         logger,
		scannerVersion: scannerVersion,
	}
}

// Reconcile compares newState against the baseline and persists the result.
// roots is the list of scan roots; only baseline paths underneath a root are
// candidates for deletion. Returns the scan summary and the merged records
// (new state plus deleted entries).
//
// All history events of one reconciliation carry the same scan time, and a
// path gets at most one history row per scan.
func (r *Reconciler) Reconcile(ctx context.Context, newState []FileMetadata, roots []string) (ScanSummary, []FileRecord, error) {
	var summary ScanSummary

	baseline, err := r.store.LoadBaseline()
	if err != nil {
		return summary, nil, fmt.Errorf("loading baseline: %w", err)
	}

	oldByPath := make(map[string]FileRecord, len(baseline))
	for _, rec := range baseline {
		oldByPath[rec.Path] = rec
	}

	scanTime := r.clock.Now().UTC()
	records := make([]FileRecord, 0, len(newState))

	if err := r.store.Begin(); err != nil {
		return summary, nil, fmt.Errorf("starting transaction: %w", err)
	}

	for i := range newState {
		if err := ctx.Err(); err != nil {
			r.store.Rollback()
			return summary, nil, err
		}

		rec := FileRecord{
			FileMetadata:   newState[i],
			UpdatedAt:      scanTime,
			LastChecked:    scanTime,
			ScannerVersion: r.scannerVersion,
		}
		summary.TotalFiles++

		old, hasOld := oldByPath[rec.Path]

		switch {
		case rec.Hash == "":
			rec.Status = StatusError
			summary.ErrorCount++

		case !hasOld:
			rec.Status = StatusNew
			summary.NewCount++
			event := HistoryEvent{
				ScanTime:  scanTime,
				FilePath:  rec.Path,
				OldStatus: HistoryStatusNone,
				NewStatus: int(StatusNew),
				NewHash:   rec.Hash,
				Comment:   "new file detected",
			}
			if err := r.store.AppendHistory(&event); err != nil {
				r.store.Rollback()
				return summary, nil, fmt.Errorf("appending history for %s: %w", rec.Path, err)
			}

		default:
			rec.PreviousHash = old.Hash
			rec.PermissionsChanged = old.Permissions != rec.Permissions || old.Mode != rec.Mode
			rec.OwnerChanged = old.Owner != rec.Owner || old.Group != rec.Group ||
				old.UID != rec.UID || old.GID != rec.GID
			rec.MtimeChanged = old.MtimeSeconds != rec.MtimeSeconds
			rec.InodeChanged = old.Inode != rec.Inode
			rec.MetadataChanged = rec.PermissionsChanged || rec.OwnerChanged ||
				rec.MtimeChanged || rec.InodeChanged
			rec.SignatureMismatch = !old.SignatureValid && old.Signature != ""

			changed := rec.Hash != old.Hash || old.Size != rec.Size ||
				rec.MetadataChanged || rec.SignatureMismatch

			if changed {
				rec.Status = StatusChanged
				summary.ChangedCount++
				event := HistoryEvent{
					ScanTime:  scanTime,
					FilePath:  rec.Path,
					OldStatus: int(old.Status),
					NewStatus: int(StatusChanged),
					OldHash:   old.Hash,
					NewHash:   rec.Hash,
				}
				if err := r.store.AppendHistory(&event); err != nil {
					r.store.Rollback()
					return summary, nil, fmt.Errorf("appending history for %s: %w", rec.Path, err)
				}
			} else {
				rec.Status = StatusOk
			}
			delete(oldByPath, rec.Path)
		}

		if err := r.store.UpsertRecord(&rec); err != nil {
			r.store.Rollback()
			return summary, nil, fmt.Errorf("upserting %s: %w", rec.Path, err)
		}
		records = append(records, rec)
	}

	// Baseline entries not present in the new state become Deleted when
	// they lie under a scan root and are gone from disk. Paths outside
	// the roots (or merely excluded now) keep their previous status.
	for path, old := range oldByPath {
		if err := ctx.Err(); err != nil {
			r.store.Rollback()
			return summary, nil, err
		}
		if !pathUnderAnyRoot(path, roots) {
			continue
		}
		if _, err := os.Lstat(path); err == nil {
			continue
		}
		if old.Status == StatusDeleted {
			// Already recorded as deleted in an earlier scan.
			continue
		}

		deleted := old
		deleted.Status = StatusDeleted
		deleted.UpdatedAt = scanTime
		deleted.LastChecked = scanTime
		deleted.ScannerVersion = r.scannerVersion
		summary.DeletedCount++

		event := HistoryEvent{
			ScanTime:  scanTime,
			FilePath:  path,
			OldStatus: int(old.Status),
			NewStatus: int(StatusDeleted),
			OldHash:   old.Hash,
			Comment:   "file deleted",
		}
		if err := r.store.AppendHistory(&event); err != nil {
			r.store.Rollback()
			return summary, nil, fmt.Errorf("appending history for %s: %w", path, err)
		}
		if err := r.store.UpsertRecord(&deleted); err != nil {
			r.store.Rollback()
			return summary, nil, fmt.Errorf("upserting deleted %s: %w", path, err)
		}
		records = append(records, deleted)
	}

	if err := r.store.Commit(); err != nil {
		r.store.Rollback()
		return summary, nil, fmt.Errorf("committing scan: %w", err)
	}

	r.logger.Info("scan reconciled",
		"total", summary.TotalFiles,
		"changed", summary.ChangedCount,
		"new", summary.NewCount,
		"deleted", summary.DeletedCount,
		"errors", summary.ErrorCount)

	return summary, records, nil
}

// pathUnderAnyRoot reports whether path equals one of the roots or lies
// underneath one.
func pathUnderAnyRoot(path string, roots []string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if cleaned == abs || strings.HasPrefix(cleaned, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
