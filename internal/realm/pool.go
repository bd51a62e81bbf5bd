package realm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
)

const acquireTimeout = 5 * time.Second

// PoolStats is a snapshot of pool occupancy
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// Pool manages a pool of reusable realms
type Pool struct {
	config Config
	logger *zap.Logger
	realms chan *Realm
	size   int
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a realm pool. Realms are named after config.Name with an
// index suffix.
func NewPool(config Config, size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config: config,
		logger: logging.OrNop(logger),
		realms: make(chan *Realm, size),
		size:   size,
	}

	for i := 0; i < size; i++ {
		r, err := pool.spawn(i)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.realms <- r
	}

	return pool, nil
}

func (p *Pool) spawn(i int) (*Realm, error) {
	config := p.config
	config.Name = fmt.Sprintf("%s-%d", p.config.Name, i)
	return New(config, p.logger)
}

// Acquire gets a realm from the pool, waiting at most until ctx ends or the
// acquisition timeout elapses.
func (p *Pool) Acquire(ctx context.Context) (*Realm, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case r, ok := <-p.realms:
		if !ok {
			return nil, ErrPoolClosed
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets r and returns it to the pool. A realm that fails to reset
// is closed and replaced.
func (p *Pool) Release(r *Realm) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return r.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()

	if err := r.Reset(ctx); err != nil {
		p.logger.Warn("Realm reset failed, replacing", zap.String("realm", r.Name()), zap.Error(err))
		r.Close()

		fresh, spawnErr := New(r.config, p.logger)
		if spawnErr != nil {
			return fmt.Errorf("replace realm %s: %w", r.Name(), spawnErr)
		}
		r = fresh
	}

	select {
	case p.realms <- r:
		return nil
	default:
		// Pool full
		return r.Close()
	}
}

// Close closes the pool and every idle realm. Realms still acquired are
// closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.realms)

	for r := range p.realms {
		r.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.realms),
		InUse:     p.size - len(p.realms),
		Closed:    p.closed,
	}
}
