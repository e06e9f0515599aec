package core

import (
	"context"
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

// Stub-side reference bookkeeping lives with the flyweight cache: the
// first construction of a stub announces NewReference, the last local
// release announces Finalize. The sweeper is the origin side of the
// protocol: it walks the export table and reclaims skeletons whose
// reference counts are all zero once the lease elapsed, unless an
// explicit publication pins them.
type Sweeper struct {
	exports *Exports
	lease   time.Duration
	log     types.Logger

	context context.Context
	finish  context.CancelFunc
}

// NewSweeper starts the background lease sweeper.
func NewSweeper(exports *Exports, lease time.Duration, log types.Logger) *Sweeper {
	ctx, done := context.WithCancel(context.Background())
	s := &Sweeper{
		exports: exports,
		lease:   lease,
		log:     log,
		context: ctx,
		finish:  done,
	}
	InvokerInstance().Spawn(s.run)
	return s
}

// Stop halts the sweeper. Already evicted skeletons stay evicted.
func (s *Sweeper) Stop() {
	s.finish()
}

func (s *Sweeper) run() {
	interval := s.lease / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.context.Done():
			return
		case now := <-ticker.C:
			if evicted := s.exports.Sweep(now, s.lease); len(evicted) > 0 {
				s.log.Debugf("lease sweep evicted %v", evicted)
			}
		}
	}
}
