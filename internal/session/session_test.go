package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/shared"
)

func newProvider(t *testing.T, fallbackKey string) *Provider {
	t.Helper()
	cfg := shared.LastfmConfig{
		SessionFile: filepath.Join(t.TempDir(), "session.toml"),
		Username:    "fallback",
		SessionKey:  fallbackKey,
	}
	return NewProvider(cfg, log.New(io.Discard))
}

func drained(p *Provider) bool {
	select {
	case <-p.Updated():
		return true
	default:
		return false
	}
}

func TestProvider(t *testing.T) {
	t.Run("Missing file keeps fallback", func(t *testing.T) {
		p := newProvider(t, "cfg-key")
		changed, err := p.Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if changed {
			t.Error("fallback should not count as a change")
		}
		if p.SessionKey() != "cfg-key" || p.Current().Username != "fallback" {
			t.Errorf("unexpected session %+v", p.Current())
		}
	})

	t.Run("Save and Load round trip", func(t *testing.T) {
		p := newProvider(t, "")
		if err := p.Save("listener", "abc123"); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if !drained(p) {
			t.Error("expected update signal after save")
		}

		info, err := os.Stat(p.Path())
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
		}

		other := NewProvider(shared.LastfmConfig{SessionFile: p.Path()}, log.New(io.Discard))
		changed, err := other.Load()
		if err != nil {
			t.Fatal(err)
		}
		if !changed || other.SessionKey() != "abc123" || other.Current().Username != "listener" {
			t.Errorf("unexpected loaded session %+v", other.Current())
		}
	})

	t.Run("Save requires key", func(t *testing.T) {
		p := newProvider(t, "")
		if err := p.Save("u", ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Corrupt file", func(t *testing.T) {
		p := newProvider(t, "")
		if err := os.WriteFile(p.Path(), []byte("key = [unterminated"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Load(); !errors.Is(err, shared.ErrInvalidSession) {
			t.Errorf("expected ErrInvalidSession, got %v", err)
		}
	})

	t.Run("Watch picks up external changes", func(t *testing.T) {
		p := newProvider(t, "")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- p.Watch(ctx) }()
		time.Sleep(100 * time.Millisecond)

		if err := os.WriteFile(p.Path(), []byte("username = \"ext\"\nkey = \"external\"\n"), 0600); err != nil {
			t.Fatal(err)
		}

		select {
		case <-p.Updated():
		case <-time.After(5 * time.Second):
			t.Fatal("no update after external write")
		}
		if p.SessionKey() != "external" {
			t.Errorf("expected external key, got %q", p.SessionKey())
		}

		cancel()
		if err := <-done; err != nil {
			t.Errorf("watch returned error: %v", err)
		}
	})
}
