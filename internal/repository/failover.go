package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"busticket/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSeatLocker prefers the shared Redis lock and drops to the in-process
// lock while Redis is unreachable, retrying the primary once a minute.
// The storage-level seat uniqueness still guards against double allocation
// across processes during an outage.
type FailoverSeatLocker struct {
	primary   domain.SeatLocker
	fallback  domain.SeatLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSeatLocker(primary, fallback domain.SeatLocker, logger *zerolog.Logger) *FailoverSeatLocker {
	return &FailoverSeatLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *FailoverSeatLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.isDown.Load() && l.now().Sub(time.Unix(0, l.lastCheck.Load())) > recoveryInterval {
		l.isDown.Store(false)
		l.logger.Info().Msg("Retrying primary seat locker")
	}

	if !l.isDown.Load() {
		unlock, err := l.primary.Lock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		l.logger.Error().Err(err).Msg("Primary seat locker failed, falling back to memory")
		l.isDown.Store(true)
		l.lastCheck.Store(l.now().UnixNano())
	}

	return l.fallback.Lock(ctx, key)
}

// Degraded reports whether the fallback is in use.
func (l *FailoverSeatLocker) Degraded() bool {
	return l.isDown.Load()
}
