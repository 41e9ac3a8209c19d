package tasks

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/services"
	"github.com/desertthunder/scrob/internal/shared"
)

const (
	DefaultTickInterval    = 2 * time.Second
	DefaultRetryDelay      = 60 * time.Second
	DefaultResponseTimeout = 10 * time.Second
	MaxBatchSize           = 40
)

// Queue is the pending event queue drained by the engine.
type Queue interface {
	Save() error
	GetNextTrack(i int) (models.QueuedEvent, bool)
	RemoveRange(start, count int) error
	RemoveInvalidTracks() int
	MarkInvalid(id, reason string) bool
	Count() int
	Any() bool
	OnTrackAdded(fn func()) (cancel func())
}

// Request is a signed write call as produced by [services.Client].
type Request interface {
	AddParameters(params url.Values) error
	BeginSend(callback func(*services.Handle)) *services.Handle
	ResponseObject() (map[string]any, error)
	StationError() services.StationError
}

// RequestFactory creates an empty write request for an API method.
type RequestFactory func(method string) Request

// ClientRequests adapts a [services.Client] into a [RequestFactory].
func ClientRequests(c *services.Client) RequestFactory {
	return func(method string) Request {
		return c.NewWriteRequest(method)
	}
}

// HistoryRecorder persists batch outcomes.
type HistoryRecorder interface {
	Record(rec *models.SubmissionRecord) error
}

// State is the submission state machine position.
type State int

const (
	Idle State = iota
	NeedTransmit
	Transmitting
	WaitingForResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case NeedTransmit:
		return "need_transmit"
	case Transmitting:
		return "transmitting"
	case WaitingForResponse:
		return "waiting_for_response"
	default:
		return ""
	}
}

// Options configures a [SubmissionEngine]. Zero values take the defaults above.
type Options struct {
	TickInterval    time.Duration
	RetryDelay      time.Duration
	ResponseTimeout time.Duration
	BatchSize       int
	Now             func() time.Time
	Events          chan<- Event
	History         HistoryRecorder
	Logger          *log.Logger
}

// OptionsFromConfig maps the [shared.EngineConfig] section onto [Options].
func OptionsFromConfig(cfg shared.EngineConfig) Options {
	return Options{
		TickInterval:    cfg.TickInterval(),
		RetryDelay:      cfg.RetryDelayDuration(),
		ResponseTimeout: cfg.ResponseTimeoutDuration(),
		BatchSize:       cfg.BatchSize,
	}
}

// Status is a point-in-time view of the engine.
type Status struct {
	State              string    `json:"state"`
	Running            bool      `json:"running"`
	Connected          bool      `json:"connected"`
	Queued             int       `json:"queued"`
	HardFailures       int       `json:"hard_failures"`
	NextRetry          time.Time `json:"next_retry,omitzero"`
	NowPlayingInFlight bool      `json:"now_playing_in_flight"`
	LastSubmission     time.Time `json:"last_submission,omitzero"`
	LastError          string    `json:"last_error,omitempty"`
}

// SubmissionEngine drains a [Queue] to the scrobbling service.
type SubmissionEngine struct {
	queue      Queue
	newRequest RequestFactory
	history    HistoryRecorder
	events     chan<- Event
	logger     *log.Logger
	now        func() time.Time

	tickInterval    time.Duration
	retryDelay      time.Duration
	responseTimeout time.Duration
	batchSize       int

	mu             sync.Mutex
	state          State
	running        bool
	connected      bool
	epoch          uint64
	batchID        uint64
	batchCount     int
	nextRetry      time.Time
	hardFailures   int
	tickerStop     chan struct{}
	cancelListener func()
	lastSubmission time.Time
	lastError      string

	nowPlaying         Request
	nowPlayingInFlight bool
}

// NewSubmissionEngine creates a stopped engine. The network is assumed connected until told otherwise.
func NewSubmissionEngine(queue Queue, newRequest RequestFactory, opts Options) *SubmissionEngine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SubmissionEngine{
		queue:           queue,
		newRequest:      newRequest,
		history:         opts.History,
		events:          opts.Events,
		logger:          shared.WithLogger(opts.Logger, "component", "engine"),
		now:             opts.Now,
		tickInterval:    opts.TickInterval,
		retryDelay:      opts.RetryDelay,
		responseTimeout: opts.ResponseTimeout,
		batchSize:       opts.BatchSize,
		connected:       true,
	}
}

// Start begins polling the queue. Starting a running engine is a no-op.
func (e *SubmissionEngine) Start() error {
	if e.queue == nil || e.newRequest == nil {
		return fmt.Errorf("%w: engine needs a queue and a transport", shared.ErrInvalidConfig)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true
	e.epoch++
	e.state = Idle
	e.hardFailures = 0
	e.cancelListener = e.queue.OnTrackAdded(e.wake)
	e.startTimerLocked()

	e.logger.Info("engine started", "queued", e.queue.Count(), "epoch", e.epoch)
	return nil
}

// Stop halts the timer and saves the queue. Responses to requests still in flight are discarded.
func (e *SubmissionEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	e.epoch++
	e.state = Idle
	e.stopTimerLocked()
	if e.cancelListener != nil {
		e.cancelListener()
		e.cancelListener = nil
	}

	e.logger.Info("engine stopped", "queued", e.queue.Count())
	if err := e.queue.Save(); err != nil {
		return fmt.Errorf("failed to save queue on stop: %w", err)
	}
	return nil
}

// Restart stops and starts the engine, e.g. after the session changed.
func (e *SubmissionEngine) Restart() error {
	if err := e.Stop(); err != nil {
		e.logger.Warn("stop during restart failed", "error", err)
	}
	return e.Start()
}

// UpdateNetworkState gates submission on connectivity. While disconnected every tick is a no-op.
func (e *SubmissionEngine) UpdateNetworkState(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connected == connected {
		return
	}
	e.connected = connected
	e.logger.Info("network state changed", "connected", connected)

	if connected && e.running && (e.queue.Any() || e.nowPlaying != nil) {
		e.startTimerLocked()
	}
}

// Status returns a snapshot of the engine state.
func (e *SubmissionEngine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		State:              e.state.String(),
		Running:            e.running,
		Connected:          e.connected,
		Queued:             e.queue.Count(),
		HardFailures:       e.hardFailures,
		NextRetry:          e.nextRetry,
		NowPlayingInFlight: e.nowPlayingInFlight,
		LastSubmission:     e.lastSubmission,
		LastError:          e.lastError,
	}
}

// wake restarts the timer after an enqueue; it runs outside the queue lock.
func (e *SubmissionEngine) wake() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.startTimerLocked()
	}
}

func (e *SubmissionEngine) startTimerLocked() {
	if e.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	e.tickerStop = stop

	go func() {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-stop:
				return
			}
		}
	}()
}

func (e *SubmissionEngine) stopTimerLocked() {
	if e.tickerStop == nil {
		return
	}
	close(e.tickerStop)
	e.tickerStop = nil
}

// tick performs at most one state transition.
func (e *SubmissionEngine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || !e.connected {
		return
	}
	now := e.now()

	if e.hardFailures > 2 && (e.state == Idle || e.state == NeedTransmit) {
		e.logger.Debug("resetting hard failure count", "failures", e.hardFailures)
		e.hardFailures = 0
	}

	switch e.state {
	case Idle:
		switch {
		case e.queue.Any():
			e.state = NeedTransmit
			e.sendEvent(submissionStartEvent(now, e.queue.Count()))
		case e.nowPlaying != nil && !e.nowPlayingInFlight:
			e.dispatchNowPlayingLocked()
		default:
			e.stopTimerLocked()
			e.sendEvent(submissionEndEvent(now))
		}
	case NeedTransmit:
		if now.Before(e.nextRetry) {
			return
		}
		if !e.queue.Any() {
			e.state = Idle
			return
		}
		e.state = Transmitting
		e.transmitLocked(now)
	case Transmitting, WaitingForResponse:
	}
}

// transmitLocked builds a batch from the head of the queue and dispatches it.
func (e *SubmissionEngine) transmitLocked(now time.Time) {
	req := e.newRequest(services.MethodScrobble)

	count, err := e.buildBatchLocked(req)
	if err != nil {
		e.logger.Error("failed to build scrobble batch", "error", err)
		e.hardFailures++
		e.nextRetry = now.Add(e.retryDelay)
		e.lastError = err.Error()
		e.state = Idle
		e.recordLocked(now, 0, models.OutcomeError, err.Error(), nil)
		return
	}

	if err := e.queue.Save(); err != nil {
		e.logger.Warn("failed to save queue before submission", "error", err)
	}

	e.batchID++
	e.batchCount = count
	e.state = WaitingForResponse

	epoch, id := e.epoch, e.batchID
	e.logger.Debug("submitting batch", "count", count, "batch", id)

	h := req.BeginSend(func(h *services.Handle) {
		e.onScrobbleResponse(req, h, epoch, id)
	})
	go e.awaitResponse(h, epoch, id)
}

// buildBatchLocked adds head events to req until the batch is full or the request would overflow.
func (e *SubmissionEngine) buildBatchLocked(req Request) (int, error) {
	count := 0
	for i := 0; i < e.batchSize; i++ {
		ev, ok := e.queue.GetNextTrack(i)
		if !ok {
			break
		}

		err := req.AddParameters(BatchParameters(ev.PlayEvent, i))
		if errors.Is(err, services.ErrMaxSizeExceeded) {
			if i == 0 {
				e.queue.MarkInvalid(ev.ID, "event exceeds maximum request size")
				removed := e.queue.RemoveInvalidTracks()
				return 0, fmt.Errorf("head event %s does not fit in a request (%d purged): %w", ev.ID, removed, err)
			}
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}

	if count == 0 {
		return 0, shared.ErrQueueEmpty
	}
	return count, nil
}

// awaitResponse bounds the wait for a batch response. It runs without the engine lock.
func (e *SubmissionEngine) awaitResponse(h *services.Handle, epoch, id uint64) {
	if h.Wait(e.responseTimeout) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.currentLocked(epoch, id) {
		return
	}

	now := e.now()
	e.logger.Warn("scrobble submission timed out", "batch", id, "timeout", e.responseTimeout)
	e.hardFailures++
	e.nextRetry = now.Add(e.retryDelay)
	e.lastError = shared.ErrTimeout.Error()
	e.recordLocked(now, e.batchCount, models.OutcomeTimeout, e.lastError, nil)
	e.batchID++
	e.state = Idle
}

func (e *SubmissionEngine) currentLocked(epoch, id uint64) bool {
	return e.running && epoch == e.epoch && id == e.batchID && e.state == WaitingForResponse
}

// onScrobbleResponse applies the batch result. Stale responses are dropped.
func (e *SubmissionEngine) onScrobbleResponse(req Request, h *services.Handle, epoch, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.currentLocked(epoch, id) {
		e.logger.Debug("discarding stale scrobble response", "batch", id)
		return
	}

	now := e.now()
	count := e.batchCount
	station := req.StationError()
	err := h.Err()

	var resp *services.ScrobbleResponse
	if err == nil {
		obj, oerr := req.ResponseObject()
		if oerr == nil {
			resp, oerr = services.ParseScrobbleResponse(obj)
		}
		err = oerr
	}

	switch {
	case err == nil:
		e.logIgnored(resp)
		if rerr := e.queue.RemoveRange(0, count); rerr != nil {
			e.logger.Error("failed to remove accepted events", "error", rerr)
		}
		if serr := e.queue.Save(); serr != nil {
			e.logger.Error("failed to save queue", "error", serr)
		}
		e.hardFailures = 0
		e.lastSubmission = now
		e.lastError = ""
		e.logger.Info("batch accepted", "count", count, "accepted", resp.Accepted, "ignored", resp.Ignored)
		e.sendEvent(submissionUpdateEvent(now, count))
		e.recordLocked(now, count, models.OutcomeAccepted, "", resp)
		e.state = e.nextStateLocked()

	case station.Soft():
		e.hardFailures++
		e.nextRetry = now.Add(e.retryDelay)
		e.lastError = err.Error()
		e.logger.Warn("service unavailable, backing off", "reason", station, "retry_at", e.nextRetry)
		e.recordLocked(now, count, models.OutcomeSoftFailure, err.Error(), nil)
		e.state = Idle

	case station != services.StationNone:
		e.hardFailures++
		e.lastError = err.Error()
		if station == services.StationInvalidSessionKey {
			e.logger.Warn("session key rejected", "error", err)
			e.sendEvent(authFailureEvent(now, services.MethodScrobble))
		} else {
			e.logger.Error("batch rejected", "reason", station, "error", err)
		}
		removed := e.queue.RemoveInvalidTracks()
		e.recordLocked(now, count, models.OutcomeFailure, fmt.Sprintf("%v (%d invalid purged)", err, removed), nil)
		e.state = e.nextStateLocked()

	default:
		e.hardFailures++
		e.nextRetry = now.Add(e.retryDelay)
		e.lastError = err.Error()
		e.logger.Error("scrobble submission failed", "error", err, "retry_at", e.nextRetry)
		e.recordLocked(now, count, models.OutcomeError, err.Error(), nil)
		e.state = Idle
	}
}

func (e *SubmissionEngine) nextStateLocked() State {
	if e.queue.Any() {
		return NeedTransmit
	}
	return Idle
}

func (e *SubmissionEngine) logIgnored(resp *services.ScrobbleResponse) {
	for _, s := range resp.Scrobbles {
		if !s.Ignored() {
			continue
		}
		e.logger.Warn("scrobble ignored",
			"artist", s.Artist.Text,
			"track", s.Track.Text,
			"album", s.Album.Text,
			"code", s.IgnoredMessage.Code,
			"reason", s.IgnoredMessage.Reason(),
		)
	}
}

func (e *SubmissionEngine) recordLocked(now time.Time, size int, outcome models.SubmissionOutcome, detail string, resp *services.ScrobbleResponse) {
	if e.history == nil {
		return
	}

	rec := &models.SubmissionRecord{BatchSize: size, Outcome: outcome, Detail: detail, SubmittedAt: now}
	if resp != nil {
		rec.Accepted, rec.Ignored = resp.Accepted, resp.Ignored
	}
	if err := e.history.Record(rec); err != nil {
		e.logger.Warn("failed to record submission", "error", err)
	}
}
