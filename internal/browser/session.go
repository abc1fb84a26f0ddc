// Package browser owns the single shared Chromium session that all store
// scrapers drive. Exclusive use is enforced with a PID lock file so a
// crashed run never strands a headless browser.
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"arbitrage-scout/internal/common/config"
	"arbitrage-scout/internal/common/logger"
)

// Session wraps the lifecycle of one rod browser plus its lock.
type Session struct {
	browser *rod.Browser
	lock    *Lock
	log     logger.Logger
}

// Open acquires the lock and launches the browser. Callers must Close the
// session even on failure paths after a successful Open.
func Open(cfg config.BrowserConfig, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.With(map[string]interface{}{"component": "browser"})

	lock := NewLock(cfg.LockPath, log)
	if err := lock.Acquire(cfg.LockPollWait); err != nil {
		return nil, err
	}

	l := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lock.Release()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	log.Info("browser session started", map[string]interface{}{"headless": cfg.Headless})
	return &Session{browser: b, lock: lock, log: log}, nil
}

// Browser exposes the underlying rod handle for scraper adapters.
func (s *Session) Browser() *rod.Browser {
	return s.browser
}

// Close shuts the browser down and releases the lock.
func (s *Session) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.log.Warn("browser close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	s.lock.Release()
	s.log.Info("browser session closed", nil)
}
