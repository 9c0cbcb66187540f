package record

import "fmt"

// SaveMode selects how the record stream is persisted, per spec.md §6.
type SaveMode int

const (
	// AtTheEnd buffers every record in memory and writes once at
	// termination.
	AtTheEnd SaveMode = iota
	// Continuous appends each record to disk as soon as it is produced.
	Continuous
	// Batch flushes every BatchSize records.
	Batch
	// Periodic flushes every PeriodSeconds simulated seconds.
	Periodic
)

func (m SaveMode) String() string {
	switch m {
	case AtTheEnd:
		return "at_the_end"
	case Continuous:
		return "continuous"
	case Batch:
		return "batch"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("save_mode(%d)", int(m))
	}
}

// SaveModeConfig names a save mode plus the one parameter Batch/Periodic
// need (n records, or s simulated seconds).
type SaveModeConfig struct {
	Mode          SaveMode
	BatchSize     int
	PeriodSeconds float64
}
