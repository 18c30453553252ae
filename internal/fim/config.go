package fim

// ScanConfig holds the scan options for one scan. It is passed explicitly
// into the scanner and the worker; nothing in the core reads process-wide
// settings.
type ScanConfig struct {
	// Roots is the ordered list of directories to walk. Roots that do not
	// exist or are not directories are skipped.
	Roots []string

	ExcludeRules []ExcludeRule

	// Recursive descends into subdirectories. Default true.
	Recursive bool

	// FollowSymlinks follows directory symlinks (with loop protection).
	// When false, symlinks are skipped entirely. Default false.
	FollowSymlinks bool

	// MaxDepth caps traversal depth; the root is depth 0. Negative
	// disables the cap. Default 20.
	MaxDepth int
}

// DefaultScanConfig returns a ScanConfig with the documented defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Recursive: true,
		MaxDepth:  20,
	}
}
