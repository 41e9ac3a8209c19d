package services

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL        = "https://ws.audioscrobbler.com/2.0/"
	DefaultMaxRequestSize = 32 * 1024

	MethodScrobble         = "track.scrobble"
	MethodUpdateNowPlaying = "track.updateNowPlaying"
)

var (
	// ErrMaxSizeExceeded is returned when adding parameters would push the request body past the size limit.
	ErrMaxSizeExceeded = errors.New("request exceeds maximum size")
	// ErrResponseNotReady is returned when a response is read before the request completed.
	ErrResponseNotReady = errors.New("response not ready")
	ErrAlreadySent      = errors.New("request already sent")
)

// StationError classifies a failure reported by the scrobbling service.
type StationError int

const (
	StationNone StationError = iota
	StationServiceOffline
	StationTemporarilyUnavailable
	StationInvalidSessionKey
	StationOther
)

func (e StationError) String() string {
	switch e {
	case StationNone:
		return "none"
	case StationServiceOffline:
		return "service offline"
	case StationTemporarilyUnavailable:
		return "temporarily unavailable"
	case StationInvalidSessionKey:
		return "invalid session key"
	default:
		return "other"
	}
}

// Soft reports whether the failure is expected to clear on its own.
func (e StationError) Soft() bool {
	return e == StationServiceOffline || e == StationTemporarilyUnavailable
}

// ClassifyCode maps a service error code to a [StationError].
func ClassifyCode(code int) StationError {
	switch code {
	case 9:
		return StationInvalidSessionKey
	case 11:
		return StationServiceOffline
	case 16, 29:
		return StationTemporarilyUnavailable
	default:
		return StationOther
	}
}

// APIError is an error payload returned by the service.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// Station returns the classification of the error code.
func (e *APIError) Station() StationError {
	return ClassifyCode(e.Code)
}

// ClientOpts configures a [Client].
type ClientOpts struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	SessionKey     string
	HTTPClient     *http.Client
	Limiter        *rate.Limiter
	MaxRequestSize int
	Logger         *log.Logger
}

// Client signs and sends write calls to the scrobbling service.
type Client struct {
	baseURL        string
	apiKey         string
	apiSecret      string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRequestSize int
	logger         *log.Logger

	mu         sync.RWMutex
	sessionKey string
}

// NewClient creates a new [Client]. Zero-valued options fall back to defaults; a nil limiter means unlimited.
func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.MaxRequestSize <= 0 {
		opts.MaxRequestSize = DefaultMaxRequestSize
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Client{
		baseURL:        opts.BaseURL,
		apiKey:         opts.APIKey,
		apiSecret:      opts.APISecret,
		sessionKey:     opts.SessionKey,
		httpClient:     opts.HTTPClient,
		limiter:        opts.Limiter,
		maxRequestSize: opts.MaxRequestSize,
		logger:         shared.WithLogger(opts.Logger, "component", "lastfm"),
	}
}

// NewClientFromConfig builds a [Client] from the [shared.LastfmConfig] section.
func NewClientFromConfig(cfg shared.LastfmConfig, logger *log.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)

	return NewClient(ClientOpts{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		SessionKey:     cfg.SessionKey,
		HTTPClient:     &http.Client{Timeout: time.Duration(max(cfg.HTTPTimeout, 1)) * time.Second},
		Limiter:        rate.NewLimiter(limit, burst),
		MaxRequestSize: cfg.MaxRequestSize,
		Logger:         logger,
	})
}

// SetSessionKey replaces the session key used by requests created afterwards.
func (c *Client) SetSessionKey(sk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = sk
}

// SessionKey returns the current session key.
func (c *Client) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

// Authenticated reports whether the client has everything needed to sign write calls.
func (c *Client) Authenticated() bool {
	return c.apiKey != "" && c.apiSecret != "" && c.SessionKey() != ""
}

// NewWriteRequest creates an empty signed write call for method (e.g. "track.scrobble").
func (c *Client) NewWriteRequest(method string) *Request {
	return &Request{
		client:     c,
		method:     method,
		sessionKey: c.SessionKey(),
		params:     url.Values{},
	}
}

// sign returns the api_sig for params: md5 of sorted key+value pairs (format excluded) plus the secret.
func (c *Client) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" || k == "callback" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	b.WriteString(c.apiSecret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
