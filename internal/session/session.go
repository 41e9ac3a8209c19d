// Package session owns the scrobbling session credentials.
//
// The session key is read from a TOML file written by `scrob auth set`, falling back
// to the key from config or the environment. [Provider.Watch] follows the file with
// fsnotify and signals [Provider.Updated] whenever the effective key changes, which
// the daemon uses to restart the submission engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/fsnotify/fsnotify"
)

// Session is an authenticated user session.
type Session struct {
	Username  string    `toml:"username"`
	Key       string    `toml:"key"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// Valid reports whether the session carries a key.
func (s Session) Valid() bool {
	return s.Key != ""
}

// Provider loads, stores and watches the session file.
type Provider struct {
	path     string
	fallback Session
	logger   *log.Logger

	mu      sync.RWMutex
	current Session
	updated chan struct{}
}

// NewProvider creates a provider for the session file named in cfg.
// The username and session key from cfg are used when the file is absent.
func NewProvider(cfg shared.LastfmConfig, logger *log.Logger) *Provider {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	fallback := Session{Username: cfg.Username, Key: cfg.SessionKey}
	return &Provider{
		path:     cfg.SessionFile,
		fallback: fallback,
		current:  fallback,
		logger:   shared.WithLogger(logger, "component", "session"),
		updated:  make(chan struct{}, 1),
	}
}

// Path returns the session file location.
func (p *Provider) Path() string {
	return p.path
}

// Current returns the effective session.
func (p *Provider) Current() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SessionKey returns the effective session key.
func (p *Provider) SessionKey() string {
	return p.Current().Key
}

// Updated receives a value whenever the effective session key changes.
func (p *Provider) Updated() <-chan struct{} {
	return p.updated
}

// Load reads the session file. A missing file keeps the configured fallback.
// It reports whether the effective key changed.
func (p *Provider) Load() (bool, error) {
	next := p.fallback

	if p.path != "" {
		data, err := os.ReadFile(p.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return false, fmt.Errorf("failed to read session file: %w", err)
		default:
			var s Session
			if err := toml.Unmarshal(data, &s); err != nil {
				return false, fmt.Errorf("%w: %v", shared.ErrInvalidSession, err)
			}
			if s.Valid() {
				next = s
			}
		}
	}

	p.mu.Lock()
	changed := next.Key != p.current.Key
	p.current = next
	p.mu.Unlock()

	if changed {
		p.notify()
	}
	return changed, nil
}

// Save writes username and key to the session file and makes them current.
func (p *Provider) Save(username, key string) error {
	if key == "" {
		return fmt.Errorf("%w: session key", shared.ErrMissingArgument)
	}
	if p.path == "" {
		return fmt.Errorf("%w: lastfm.session_file is not set", shared.ErrMissingConfig)
	}

	s := Session{Username: username, Key: key, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	p.mu.Lock()
	changed := p.current.Key != key
	p.current = s
	p.mu.Unlock()

	if changed {
		p.notify()
	}
	return nil
}

// Watch follows the session file until ctx is done, reloading it on every change.
//
// The parent directory is watched so editors that replace the file are picked up.
func (p *Provider) Watch(ctx context.Context) error {
	if p.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(p.path)
	p.logger.Debug("watching session file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}

			changed, err := p.Load()
			if err != nil {
				p.logger.Warn("failed to reload session", "error", err)
				continue
			}
			if changed {
				p.logger.Info("session changed", "username", p.Current().Username)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("session watcher error", "error", err)
		}
	}
}

// notify signals Updated without blocking; one pending signal is enough.
func (p *Provider) notify() {
	select {
	case p.updated <- struct{}{}:
	default:
	}
}
