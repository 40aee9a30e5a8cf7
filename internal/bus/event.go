package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are namespaced by component:
//
//	sync.status_changed   — connection state transition (payload status.Change)
//	sync.folder_synced    — a folder sync completed (payload sync.Result)
//	process.email_classified — one message classified and committed
//	content.batch_dispatched — a URL batch handed to the extraction gateway
//	proposal.generated    — a cleanup proposal was created
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
