package services

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tu "github.com/desertthunder/scrob/internal/testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientOpts{
		BaseURL:    server.URL,
		APIKey:     "key",
		APISecret:  "secret",
		SessionKey: "session",
		Logger:     nil,
	})
	return client, server
}

func TestClassifyCode(t *testing.T) {
	tc := []struct {
		code int
		want StationError
	}{
		{code: 9, want: StationInvalidSessionKey},
		{code: 11, want: StationServiceOffline},
		{code: 16, want: StationTemporarilyUnavailable},
		{code: 29, want: StationTemporarilyUnavailable},
		{code: 6, want: StationOther},
		{code: 0, want: StationOther},
	}

	for _, tt := range tc {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			if got := ClassifyCode(tt.code); got != tt.want {
				t.Errorf("ClassifyCode(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}

	if !StationServiceOffline.Soft() || !StationTemporarilyUnavailable.Soft() {
		t.Error("offline and unavailable should be soft")
	}
	if StationInvalidSessionKey.Soft() || StationOther.Soft() {
		t.Error("session and other failures should not be soft")
	}
}

func TestSign(t *testing.T) {
	client := NewClient(ClientOpts{APIKey: "key", APISecret: "secret"})
	params := url.Values{
		"method":  {"track.scrobble"},
		"api_key": {"key"},
		"sk":      {"session"},
		"format":  {"json"},
	}

	sum := md5.Sum([]byte("api_keykeymethodtrack.scrobblesksessionsecret"))
	want := hex.EncodeToString(sum[:])

	if got := client.sign(params); got != want {
		t.Errorf("sign() = %s, want %s", got, want)
	}
}

func TestRequest(t *testing.T) {
	t.Run("AddParameters respects size limit atomically", func(t *testing.T) {
		client := NewClient(ClientOpts{APIKey: "key", APISecret: "secret", SessionKey: "sk", MaxRequestSize: 300})
		req := client.NewWriteRequest("track.scrobble")

		if err := req.AddParameter("track[0]", "short"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := req.Size()

		big := url.Values{
			"track[1]":  {"x"},
			"artist[1]": {strings.Repeat("y", 400)},
		}
		if err := req.AddParameters(big); !errors.Is(err, ErrMaxSizeExceeded) {
			t.Fatalf("expected ErrMaxSizeExceeded, got %v", err)
		}
		if req.Size() != before {
			t.Error("failed AddParameters should leave the request unchanged")
		}
		if req.params.Has("track[1]") {
			t.Error("partial parameters should not be added")
		}
	})

	t.Run("BeginSend posts signed form", func(t *testing.T) {
		var form url.Values
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse form: %v", err)
			}
			form = r.PostForm
			w.Write([]byte(`{"nowplaying":{}}`))
		})

		req := client.NewWriteRequest("track.updateNowPlaying")
		req.AddParameter("artist", "Autechre")
		req.AddParameter("track", "Gantz Graf")

		h := req.BeginSend(nil)
		if err := req.EndSend(h); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, key := range []string{"method", "api_key", "sk", "api_sig", "artist", "track"} {
			if form.Get(key) == "" {
				t.Errorf("missing form field %s", key)
			}
		}
		if form.Get("format") != "json" {
			t.Errorf("expected format=json, got %q", form.Get("format"))
		}

		check := url.Values{}
		for k, v := range form {
			if k != "api_sig" {
				check[k] = v
			}
		}
		if got := client.sign(check); got != form.Get("api_sig") {
			t.Errorf("signature mismatch: %s vs %s", got, form.Get("api_sig"))
		}

		obj, err := req.ResponseObject()
		if err != nil {
			t.Fatalf("expected response object, got %v", err)
		}
		if _, ok := obj["nowplaying"]; !ok {
			t.Errorf("unexpected response %v", obj)
		}
		if req.StationError() != StationNone {
			t.Errorf("expected no station error, got %v", req.StationError())
		}
	})

	t.Run("Service error is classified", func(t *testing.T) {
		tc := []struct {
			body string
			want StationError
		}{
			{body: `{"error":9,"message":"Invalid session key"}`, want: StationInvalidSessionKey},
			{body: `{"error":11,"message":"Service Offline"}`, want: StationServiceOffline},
			{body: `{"error":16,"message":"Temporarily unavailable"}`, want: StationTemporarilyUnavailable},
			{body: `{"error":29,"message":"Rate limit exceeded"}`, want: StationTemporarilyUnavailable},
			{body: `{"error":13,"message":"Invalid signature"}`, want: StationOther},
		}

		for _, tt := range tc {
			t.Run(tt.want.String(), func(t *testing.T) {
				client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadRequest)
					io.WriteString(w, tt.body)
				})

				req := client.NewWriteRequest("track.scrobble")
				err := req.EndSend(req.BeginSend(nil))

				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %v", err)
				}
				if req.StationError() != tt.want {
					t.Errorf("expected %v, got %v", tt.want, req.StationError())
				}
			})
		}
	})

	t.Run("Invalid JSON is a transport error", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>bad gateway</html>"))
		})

		req := client.NewWriteRequest("track.scrobble")
		if err := req.EndSend(req.BeginSend(nil)); err == nil {
			t.Fatal("expected error")
		}
		if req.StationError() != StationNone {
			t.Errorf("transport errors should not set a station error, got %v", req.StationError())
		}
		if _, err := req.ResponseObject(); !errors.Is(err, ErrResponseNotReady) {
			t.Errorf("expected ErrResponseNotReady, got %v", err)
		}
	})

	t.Run("Failed HTTP Request", func(t *testing.T) {
		client := NewClient(ClientOpts{
			BaseURL:    "http://example.invalid",
			HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))},
		})
		req := client.NewWriteRequest("track.scrobble")
		if err := req.EndSend(req.BeginSend(nil)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("Failed Response Body Read", func(t *testing.T) {
		client := NewClient(ClientOpts{
			BaseURL: "http://example.invalid",
			HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
				StatusCode: http.StatusOK,
				Body:       &tu.FCloser{},
				Header:     make(http.Header),
			}, nil)},
		})
		req := client.NewWriteRequest("track.scrobble")
		if err := req.EndSend(req.BeginSend(nil)); err == nil {
			t.Fatal("expected read error")
		}
	})

	t.Run("Callback runs asynchronously", func(t *testing.T) {
		release := make(chan struct{})
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte(`{}`))
		})

		var called atomic.Bool
		done := make(chan struct{})
		req := client.NewWriteRequest("track.scrobble")
		h := req.BeginSend(func(*Handle) {
			called.Store(true)
			close(done)
		})

		if called.Load() {
			t.Fatal("callback ran before BeginSend returned")
		}
		if h.Wait(20 * time.Millisecond) {
			t.Fatal("handle should not complete while the server is blocked")
		}
		if !errors.Is(h.Err(), ErrResponseNotReady) {
			t.Errorf("expected ErrResponseNotReady before completion, got %v", h.Err())
		}

		close(release)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("callback never ran")
		}
		if !h.Wait(time.Second) {
			t.Error("handle should be complete after callback")
		}
	})

	t.Run("Second send fails", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
		req := client.NewWriteRequest("track.scrobble")
		if err := req.EndSend(req.BeginSend(nil)); err != nil {
			t.Fatal(err)
		}
		if err := req.EndSend(req.BeginSend(nil)); !errors.Is(err, ErrAlreadySent) {
			t.Errorf("expected ErrAlreadySent, got %v", err)
		}
		if err := req.AddParameter("a", "b"); !errors.Is(err, ErrAlreadySent) {
			t.Errorf("expected ErrAlreadySent, got %v", err)
		}
	})
}

func TestHandle(t *testing.T) {
	h := NewHandle()
	h.Complete(errors.New("first"))
	h.Complete(nil)

	if !h.Wait(0) {
		t.Fatal("completed handle should not wait")
	}
	if h.Err() == nil || h.Err().Error() != "first" {
		t.Errorf("expected first error to win, got %v", h.Err())
	}
}

func TestSessionKey(t *testing.T) {
	client := NewClient(ClientOpts{APIKey: "k", APISecret: "s"})
	if client.Authenticated() {
		t.Error("client without session should not be authenticated")
	}

	client.SetSessionKey("abc")
	if !client.Authenticated() || client.SessionKey() != "abc" {
		t.Error("session key not applied")
	}

	req := client.NewWriteRequest("track.scrobble")
	client.SetSessionKey("def")
	if req.sessionKey != "abc" {
		t.Error("existing requests keep the session key they were created with")
	}
}
