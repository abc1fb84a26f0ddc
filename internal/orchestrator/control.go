package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"arbitrage-scout/internal/common/database"
)

// Signal is an out-of-band run control command. The orchestrator polls the
// control source at the top of every store and product iteration; signals
// are never delivered mid-operation.
type Signal string

const (
	SignalRun    Signal = "RUN"
	SignalPause  Signal = "PAUSE"
	SignalResume Signal = "RESUME"
	SignalStop   Signal = "STOP"
)

// ControlSource reports the current run signal. Implementations must be
// safe for concurrent use.
type ControlSource interface {
	Current(ctx context.Context) (Signal, error)
}

// MemoryControl is an in-process control source, used when no control
// backend is configured and in tests.
type MemoryControl struct {
	mu     sync.Mutex
	signal Signal
}

func NewMemoryControl() *MemoryControl {
	return &MemoryControl{signal: SignalRun}
}

func (c *MemoryControl) Set(s Signal) {
	c.mu.Lock()
	c.signal = s
	c.mu.Unlock()
}

func (c *MemoryControl) Current(context.Context) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal, nil
}

// controlKeyPrefix namespaces the per-run control key another client
// writes to steer a running pass.
const controlKeyPrefix = "scout:control:"

// RedisControl reads run signals from a per-run redis key. A missing key
// means RUN; an unreadable backend is reported so the caller can decide
// whether to proceed blind.
type RedisControl struct {
	client *database.RedisClient
	key    string
}

func NewRedisControl(client *database.RedisClient, runID string) *RedisControl {
	return &RedisControl{client: client, key: controlKeyPrefix + runID}
}

func (c *RedisControl) Current(ctx context.Context) (Signal, error) {
	val, err := c.client.Get(ctx, c.key)
	if err == redis.Nil {
		return SignalRun, nil
	}
	if err != nil {
		return SignalRun, err
	}

	switch Signal(strings.ToUpper(strings.TrimSpace(val))) {
	case SignalPause:
		return SignalPause, nil
	case SignalStop:
		return SignalStop, nil
	case SignalResume:
		return SignalResume, nil
	default:
		return SignalRun, nil
	}
}
