package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/shared"
	tu "github.com/desertthunder/scrob/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				ConfigPath: "/test/path/config.toml",
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses a bounded client", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.httpClient == nil || runner.httpClient.Timeout == 0 {
				t.Error("expected default httpClient with a timeout")
			}
		})

		t.Run("does not open storage eagerly", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})
			if runner.db != nil || runner.queue != nil || runner.engine != nil {
				t.Error("expected lazy storage and engine")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make(map[string]bool)
		for _, c := range commands {
			names[c.Name] = true
		}
		for _, want := range []string{"setup", "run", "watch", "status", "queue", "nowplaying", "auth"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("openStore", func(t *testing.T) {
		t.Run("requires config", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if err := runner.openStore(); !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("opens once", func(t *testing.T) {
			cfg := testConfig(t, "")
			runner := NewRunner(RunnerOpts{Config: cfg, Logger: log.New(io.Discard)})
			defer runner.Close()

			if err := runner.openStore(); err != nil {
				t.Fatalf("openStore failed: %v", err)
			}
			db := runner.db
			if err := runner.openStore(); err != nil {
				t.Fatal(err)
			}
			if runner.db != db {
				t.Error("expected the same database handle")
			}
			tu.AssertFileExists(t, cfg.Database.Path)
		})
	})

	t.Run("openEngine requires credentials", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Lastfm.APISecret = ""
		runner := NewRunner(RunnerOpts{Config: cfg, Logger: log.New(io.Discard)})
		defer runner.Close()

		if err := runner.openEngine(); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("daemonRunning", func(t *testing.T) {
		t.Run("false when server disabled", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: testConfig(t, "")})
			if runner.daemonRunning(context.Background()) {
				t.Error("expected false")
			}
		})

		t.Run("false when unreachable", func(t *testing.T) {
			cfg := testConfig(t, "")
			cfg.Server.Enabled = true
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			runner := NewRunner(RunnerOpts{Config: cfg, HTTPClient: client})
			if runner.daemonRunning(context.Background()) {
				t.Error("expected false")
			}
		})
	})

	t.Run("serve", func(t *testing.T) {
		t.Run("restarts engine on session change", func(t *testing.T) {
			cfg := testConfig(t, "")
			runner := NewRunner(RunnerOpts{Config: cfg, Logger: log.New(io.Discard)})
			defer runner.Close()

			err := runner.serve(context.Background(), func(ctx context.Context) error {
				if !runner.engine.Status().Running {
					t.Error("expected engine running while attached")
				}
				if err := runner.session.Save("rj", "fresh-key"); err != nil {
					return err
				}

				deadline := time.Now().Add(2 * time.Second)
				for runner.client.SessionKey() != "fresh-key" {
					if time.Now().After(deadline) {
						t.Error("session key was not pushed to the transport")
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("serve failed: %v", err)
			}
			if runner.engine.Status().Running {
				t.Error("expected engine stopped after serve returns")
			}
		})

		t.Run("attach error is returned", func(t *testing.T) {
			cfg := testConfig(t, "")
			runner := NewRunner(RunnerOpts{Config: cfg, Logger: log.New(io.Discard)})
			defer runner.Close()

			boom := errors.New("boom")
			err := runner.serve(context.Background(), func(ctx context.Context) error { return boom })
			if !errors.Is(err, boom) {
				t.Errorf("expected attach error, got %v", err)
			}
		})
	})

	t.Run("mask", func(t *testing.T) {
		tc := []struct{ in, want string }{
			{"", "****"},
			{"abcd", "****"},
			{"abcdef123", "****f123"},
		}
		for _, tt := range tc {
			if got := mask(tt.in); got != tt.want {
				t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})
}

func testConfig(t *testing.T, baseURL string) *shared.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := shared.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "scrob.db")
	cfg.Server.Enabled = false
	cfg.Server.Host = "127.0.0.1"
	cfg.Lastfm.APIKey = "api-key"
	cfg.Lastfm.APISecret = "api-secret"
	cfg.Lastfm.SessionKey = "session-key"
	cfg.Lastfm.SessionFile = filepath.Join(dir, "session.toml")
	cfg.Lastfm.RequestsPerSecond = 0
	cfg.Lastfm.HTTPTimeout = 5
	cfg.Engine.TickIntervalMS = 10
	cfg.Log.Level = "error"
	if baseURL != "" {
		cfg.Lastfm.BaseURL = baseURL
	}
	return cfg
}
