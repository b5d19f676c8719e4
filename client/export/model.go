package export

import (
	"time"
)

// DefaultInterval is the fixed pause between two status requests.
const DefaultInterval = time.Second

// State is where a job sits in its lifecycle.
type State int

const (
	// Pending jobs are still being assembled by the server.
	Pending State = iota
	// Ready jobs have an archive waiting to be streamed.
	Ready
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Request is the body of an export job submission. The server only
// accepts string ids, including for studies.
type Request struct {
	Behaviors []string `json:"behaviors" validate:"dive,required"`
	Studies   []string `json:"studies"   validate:"dive,required"`
}

// Job is a submitted export. Location is the status URI exactly as the
// server returned it. A Job belongs to the call that created it.
type Job struct {
	Location string
	State    State
}
