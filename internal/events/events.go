// Package events carries stage state transitions from the scheduler to its
// observers (the run journal, progress logging) without coupling them.
package events

import "time"

// StageEvent records one state transition of a stage instance.
type StageEvent struct {
	RunID     string
	Stage     string
	From      string
	To        string
	ErrorKind string
	Detail    string
	Timestamp time.Time
}
