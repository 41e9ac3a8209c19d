// Package server provides the local ingest API a media player uses to report plays.
//
// # Router Infrastructure
//
// [BasicRouter] wraps [http.ServeMux] with a [Middleware] stack. Middleware added
// first runs outermost. [Handler] implementations carry their own route patterns.
//
// # Ingest API
//
// [IngestHandler] serves:
//   - POST /scrobble : enqueue a finished play (JSON [models.PlayEvent])
//   - POST /nowplaying : announce the current track (JSON [models.NowPlaying])
//   - GET /status : engine state and queue size
//   - POST /network : {"connected": bool} connectivity hint
//
// Enqueued plays are persisted before the response is written.
package server
