// Package models defines the domain entities of the scrobble client.
//
// The package contains two categories of types:
//
// 1. Play events: what the player reports
//   - [PlayEvent] : a single finished playback of a track
//   - [NowPlaying] : the track currently playing, announced but never queued
//
// 2. Persistent entities: rows owned by the durable queue and history store
//   - [QueuedEvent] : a [PlayEvent] with its queue position and invalid flag
//   - [SubmissionRecord] : the outcome of one batch submission
//
// A [PlayEvent] is immutable once enqueued. [PlayEvent.Validate] reports whether
// the remote service would reject it permanently.
package models
