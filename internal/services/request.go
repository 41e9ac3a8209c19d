package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/scrob/internal/shared"
)

// Handle tracks an in-flight request. It is completed exactly once.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewHandle returns an incomplete [Handle].
func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Complete records err and releases waiters. Later calls are ignored.
func (h *Handle) Complete(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done is closed when the request finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the request error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return ErrResponseNotReady
	}
}

// Wait blocks until the request finishes or timeout elapses and reports whether it finished.
func (h *Handle) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

// Request is a single signed write call.
type Request struct {
	client     *Client
	method     string
	sessionKey string
	params     url.Values

	mu       sync.Mutex
	sent     bool
	response map[string]any
	station  StationError
}

// Method returns the API method name.
func (r *Request) Method() string {
	return r.method
}

// AddParameter adds a single name/value pair.
func (r *Request) AddParameter(name, value string) error {
	return r.AddParameters(url.Values{name: {value}})
}

// AddParameters adds every value in params, or none of them if the signed body would exceed the size limit.
func (r *Request) AddParameters(params url.Values) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sent {
		return ErrAlreadySent
	}

	merged := maps.Clone(r.params)
	for k, vs := range params {
		merged[k] = append(merged[k], vs...)
	}

	if size := len(r.encode(merged)); size > r.client.maxRequestSize {
		return fmt.Errorf("%w: %d bytes > %d", ErrMaxSizeExceeded, size, r.client.maxRequestSize)
	}
	r.params = merged
	return nil
}

// Size returns the length of the signed, form-encoded body.
func (r *Request) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.encode(r.params))
}

// encode returns the signed form body for params.
func (r *Request) encode(params url.Values) string {
	body := maps.Clone(params)
	body.Set("method", r.method)
	body.Set("api_key", r.client.apiKey)
	body.Set("sk", r.sessionKey)
	body.Set("api_sig", r.client.sign(body))
	body.Set("format", "json")
	return body.Encode()
}

// BeginSend dispatches the request on a new goroutine and returns its [Handle] immediately.
//
// callback, when non-nil, runs on that goroutine after the handle completes.
func (r *Request) BeginSend(callback func(*Handle)) *Handle {
	h := NewHandle()

	r.mu.Lock()
	alreadySent := r.sent
	r.sent = true
	body := r.encode(r.params)
	r.mu.Unlock()

	go func() {
		if alreadySent {
			h.Complete(ErrAlreadySent)
		} else {
			h.Complete(r.send(context.Background(), body))
		}
		if callback != nil {
			callback(h)
		}
	}()
	return h
}

// EndSend blocks until h completes and returns its error.
func (r *Request) EndSend(h *Handle) error {
	<-h.Done()
	return h.Err()
}

// ResponseObject returns the decoded JSON response.
func (r *Request) ResponseObject() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.response == nil {
		return nil, ErrResponseNotReady
	}
	return r.response, nil
}

// StationError returns the service error classification, [StationNone] unless the service reported an error.
func (r *Request) StationError() StationError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.station
}

func (r *Request) send(ctx context.Context, body string) error {
	logger := r.client.logger

	if err := r.client.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.client.baseURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	logger.Debug("sending", "method", r.method, "bytes", len(body))
	resp, err := r.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: invalid JSON response (status %d): %v", shared.ErrAPIRequest, resp.StatusCode, err)
	}

	r.mu.Lock()
	r.response = obj
	r.mu.Unlock()

	if apiErr := parseAPIError(obj); apiErr != nil {
		r.mu.Lock()
		r.station = apiErr.Station()
		r.mu.Unlock()
		logger.Debug("service error", "method", r.method, "code", apiErr.Code, "message", apiErr.Message)
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}

// parseAPIError extracts {"error": N, "message": "..."} from obj.
func parseAPIError(obj map[string]any) *APIError {
	raw, ok := obj["error"]
	if !ok {
		return nil
	}

	apiErr := &APIError{}
	switch v := raw.(type) {
	case float64:
		apiErr.Code = int(v)
	case string:
		apiErr.Code, _ = strconv.Atoi(v)
	}
	apiErr.Message, _ = obj["message"].(string)
	return apiErr
}
