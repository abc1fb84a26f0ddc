package browser

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
)

func testLock(t *testing.T) (*Lock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browser.lock")
	return NewLock(path, logger.NewTestLogger(t)), path
}

func TestAcquireWritesOwnPid(t *testing.T) {
	l, path := testLock(t)
	l.pid = func() int { return 4242 }

	require.NoError(t, l.Acquire(time.Second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "4242", strings.TrimSpace(string(data)))

	l.Release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	l, path := testLock(t)
	require.NoError(t, os.WriteFile(path, []byte("9999\n"), 0o644))

	l.alive = func(pid int) bool { return false }
	killed := false
	l.killOnce = func(pid int) error { killed = true; return nil }

	require.NoError(t, l.Acquire(time.Second))
	assert.False(t, killed, "dead holder must not be signalled")
}

func TestAcquireKillsLiveHolderOnce(t *testing.T) {
	l, path := testLock(t)
	require.NoError(t, os.WriteFile(path, []byte("9999\n"), 0o644))

	var kills int
	holderAlive := true
	l.alive = func(pid int) bool { return holderAlive }
	l.killOnce = func(pid int) error {
		kills++
		holderAlive = false
		return nil
	}

	require.NoError(t, l.Acquire(2*time.Second))
	assert.Equal(t, 1, kills)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireFatalWhenHolderWontDie(t *testing.T) {
	l, path := testLock(t)
	require.NoError(t, os.WriteFile(path, []byte("9999\n"), 0o644))

	l.alive = func(pid int) bool { return true }
	l.killOnce = func(pid int) error { return nil }

	err := l.Acquire(300 * time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeResourceLocked, stderrors.CodeOf(err))
	assert.True(t, stderrors.IsFatal(err))
}

func TestAcquireDiscardsGarbledLock(t *testing.T) {
	l, path := testLock(t)
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	require.NoError(t, l.Acquire(time.Second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestReleaseLeavesForeignLock(t *testing.T) {
	l, path := testLock(t)
	require.NoError(t, os.WriteFile(path, []byte("9999\n"), 0o644))

	l.Release()

	_, err := os.Stat(path)
	assert.NoError(t, err, "a lock held by another pid must not be removed")
}
