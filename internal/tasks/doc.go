// Package tasks implements the scrobble submission engine.
//
// [SubmissionEngine] drains the pending queue in batches of up to 40 events, one
// state transition per timer tick:
//
//	Idle ──queue non-empty──▶ NeedTransmit ──retry time reached──▶ Transmitting ──dispatched──▶ WaitingForResponse
//	 ▲                                                                  │                             │
//	 └───────────────────── construction failure ◀──────────────────────┘                             │
//	 └──────────── success (queue empty) / soft failure / transport error / timeout ◀──────────────────┘
//
// A single mutex guards the whole transition table. Network round-trips run on the
// transport's goroutines; their callbacks carry the engine epoch and batch id they
// were issued under and are discarded when either is stale.
//
// Now-playing announcements bypass the queue and allow one request in flight.
//
// Lifecycle notifications are delivered on an optional [Event] channel without blocking.
package tasks
