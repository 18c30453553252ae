package fim

import (
	"context"
	"fmt"
)

// Event is one message from a running scan worker. The stream for one scan
// is: any number of Progress and FileProcessed events in traversal order,
// then exactly one terminal Finished or Failed event.
type Event interface{ isEvent() }

// Progress reports how many files have been processed so far. The total is
// not known until traversal completes; the terminal Finished summary
// carries the final count.
type Progress struct {
	Processed int
}

// FileProcessed reports that one file has been scanned.
type FileProcessed struct {
	Path string
}

// Finished is the terminal event of a successful scan.
type Finished struct {
	Summary ScanSummary
	Notify  NotifySummary
	Records []FileRecord
}

// Failed is the terminal event of a scan that aborted. Whatever the store
// transaction had written has been rolled back.
type Failed struct {
	Message string
}

func (Progress) isEvent()      {}
func (FileProcessed) isEvent() {}
func (Finished) isEvent()      {}
func (Failed) isEvent()        {}

// Worker drives one logical scan on a background goroutine. Each Worker
// owns its own Store handle; handles are never shared across scans.
type Worker struct {
	store          Store
	probe          MetadataProbe
	hasher         Hasher
	clock          Clock
	logger         Logger
	scannerVersion string
}

// NewWorker creates a Worker around a dedicated store handle.
func NewWorker(store Store, probe MetadataProbe, hasher Hasher, clock Clock, logger Logger, scannerVersion string) *Worker {
	return &Worker{
		store:          store,
		probe:          probe,
		hasher:         hasher,
		clock:          clock,
		logger:         logger,
		scannerVersion: scannerVersion,
	}
}

// Run executes one scan and emits events on the returned channel. The
// channel is closed after the terminal event. Cancel the context to stop
// the scan at the next file boundary; a cancelled scan rolls back and
// terminates with a Failed event.
func (w *Worker) Run(ctx context.Context, cfg ScanConfig) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		w.run(ctx, cfg, events)
	}()
	return events
}

func (w *Worker) run(ctx context.Context, cfg ScanConfig, events chan<- Event) {
	processed := 0

	scanner := NewScanner(cfg, w.probe, w.hasher, w.logger)
	scanner.OnFile = func(meta *FileMetadata) {
		processed++
		events <- FileProcessed{Path: meta.Path}
		events <- Progress{Processed: processed}
	}

	newState, err := scanner.Scan(ctx)
	if err != nil {
		events <- Failed{Message: fmt.Sprintf("scan aborted: %v", err)}
		return
	}

	reconciler := NewReconciler(w.store, w.clock, w.logger, w.scannerVersion)
	summary, records, err := reconciler.Reconcile(ctx, newState, cfg.Roots)
	if err != nil {
		events <- Failed{Message: fmt.Sprintf("reconciliation failed: %v", err)}
		return
	}

	events <- Finished{
		Summary: summary,
		Notify:  BuildNotifySummary(records),
		Records: records,
	}
}
