// Package services implements the HTTP transports used by the scrobble client.
//
// # Scrobbling service
//
// [Client] talks to a Last.fm 2.0 compatible endpoint. Write calls are built with
// [Client.NewWriteRequest], filled with [Request.AddParameters] and dispatched with
// [Request.BeginSend], which returns a [Handle] immediately and runs the round-trip
// on its own goroutine. The completion callback never runs on the caller's goroutine.
//
// Each write request carries method, api_key, sk, format=json and api_sig. The signature
// is the md5 of the sorted key/value concatenation (format excluded) followed by the
// shared secret.
//
// # Error Classification
//
// Service error codes map onto [StationError]:
//   - 9 : [StationInvalidSessionKey]
//   - 11 : [StationServiceOffline]
//   - 16, 29 : [StationTemporarilyUnavailable]
//   - anything else : [StationOther]
//
// Network and decode failures leave the station error at [StationNone] and are
// reported through [Handle.Err].
//
// # Local daemon
//
// [DaemonClient] is the JSON client the CLI uses against a running daemon's ingest API.
package services
