package domain

import "time"

// Operation names the kind of provider invocation being metered.
type Operation string

const (
	OperationText  Operation = "text"
	OperationAudio Operation = "audio"
)

// InvocationRecord is the ephemeral per-call metering event emitted by every
// provider invocation, success or failure. It is not retained beyond the
// meter's aggregation windows.
type InvocationRecord struct {
	Provider    string
	Operation   Operation
	InputChars  int
	OutputChars int
	Latency     time.Duration
	Success     bool
	Timestamp   time.Time
}
