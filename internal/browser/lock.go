package browser

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
)

const lockPollInterval = 250 * time.Millisecond

// Lock is a PID file guarding the single browser session. A holder that
// died without cleanup is detected by probing its PID and its file is
// reclaimed; a live holder is signalled to terminate once and then given
// a bounded grace window to release.
type Lock struct {
	path string
	log  logger.Logger

	// test hooks
	pid      func() int
	alive    func(pid int) bool
	killOnce func(pid int) error
}

func NewLock(path string, log logger.Logger) *Lock {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Lock{
		path:     path,
		log:      log.With(map[string]interface{}{"component": "browser-lock"}),
		pid:      os.Getpid,
		alive:    processAlive,
		killOnce: func(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) },
	}
}

// Acquire claims the lock, recovering it from a stale or wedged holder
// when possible. Failure to claim within the poll window is fatal to the
// run, not retryable.
func (l *Lock) Acquire(pollWait time.Duration) error {
	holder, err := l.readHolder()
	if err != nil {
		return err
	}

	if holder != 0 {
		if !l.alive(holder) {
			l.log.Warn("removing stale browser lock", map[string]interface{}{
				"path":      l.path,
				"holderPid": holder,
			})
			_ = os.Remove(l.path)
		} else {
			l.log.Warn("browser lock held by live process, requesting shutdown", map[string]interface{}{
				"holderPid": holder,
			})
			if err := l.killOnce(holder); err != nil {
				return stderrors.NewResourceLockedError(
					fmt.Sprintf("lock held by pid %d and signal failed: %v", holder, err))
			}
			if !l.waitCleared(holder, pollWait) {
				return stderrors.NewResourceLockedError(
					fmt.Sprintf("lock held by pid %d did not clear within %s", holder, pollWait))
			}
			_ = os.Remove(l.path)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return stderrors.NewResourceLockedError("lock file reappeared during acquisition")
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", l.pid()); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Release removes the lock if we still hold it.
func (l *Lock) Release() {
	holder, err := l.readHolder()
	if err != nil || holder != l.pid() {
		return
	}
	if err := os.Remove(l.path); err != nil {
		l.log.Warn("failed to remove browser lock", map[string]interface{}{"error": err.Error()})
	}
}

// readHolder returns the PID recorded in the lock file, 0 when absent.
// A garbled lock file is treated as stale.
func (l *Lock) readHolder() (int, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		l.log.Warn("discarding unreadable browser lock", map[string]interface{}{"path": l.path})
		_ = os.Remove(l.path)
		return 0, nil
	}
	return pid, nil
}

func (l *Lock) waitCleared(holder int, pollWait time.Duration) bool {
	deadline := time.Now().Add(pollWait)
	for time.Now().Before(deadline) {
		if !l.alive(holder) {
			return true
		}
		time.Sleep(lockPollInterval)
	}
	return !l.alive(holder)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
