package fim

// FileStatus classifies a file after reconciliation against the baseline.
type FileStatus int

const (
	StatusOk      FileStatus = 0
	StatusChanged FileStatus = 1
	StatusNew     FileStatus = 2
	StatusDeleted FileStatus = 3
	StatusError   FileStatus = 4
)

// HistoryStatusNone encodes "no previous status" in history events
// (first observation of a path).
const HistoryStatusNone = -1

func (s FileStatus) String() string {
	switch s {
	case StatusChanged:
		return "Changed"
	case StatusNew:
		return "New"
	case StatusDeleted:
		return "Deleted"
	case StatusError:
		return "Error"
	default:
		return "Ok"
	}
}

// ParseStatus maps a persisted status label back to a FileStatus.
// Legacy labels from old databases map onto their modern equivalents;
// anything unrecognized is treated as Ok.
func ParseStatus(label string) FileStatus {
	switch label {
	case "Changed", "Modified", "MetaChanged":
		return StatusChanged
	case "New":
		return StatusNew
	case "Deleted":
		return StatusDeleted
	case "Error", "Failed", "SignatureError":
		return StatusError
	default:
		return StatusOk
	}
}
