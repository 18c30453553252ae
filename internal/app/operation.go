package app

// mutatingOps names the CLI operations that write to the baseline database.
// Only these trigger a snapshot upload to the configured vaults on Close.
var mutatingOps = map[string]bool{
	"Scan":          true,
	"Watch":         true,
	"ClearBaseline": true,
	"RestoreDB":     true,
}

// ScanOperation tracks the CLI operation an App instance was created for.
type ScanOperation struct {
	Name   string
	Status string // "success" or "error"
}

// NewScanOperation creates a new operation record.
func NewScanOperation(name string) *ScanOperation {
	return &ScanOperation{
		Name:   name,
		Status: "success",
	}
}

// Mutating returns true if this operation writes to the baseline database.
func (op *ScanOperation) Mutating() bool {
	return mutatingOps[op.Name]
}
