package rtc

import (
	"context"
	"sync"

	"github.com/merhawi-21/video-meeting/internal/logger"
)

// SourceManager owns the single local source of a room membership.
// Acquisition is single in-flight: a newer quality request supersedes a
// pending one, and the stale result is released rather than left live.
type SourceManager struct {
	engine Engine
	log    *logger.Logger

	mu     sync.Mutex
	gen    uint64
	cur    Source
	closed bool
}

func NewSourceManager(engine Engine, log *logger.Logger) *SourceManager {
	return &SourceManager{engine: engine, log: log}
}

// Acquire releases the current source and obtains a new one with the
// given quality. If another Acquire starts while this one is in flight,
// the older call discards its result and returns ErrSuperseded.
func (m *SourceManager) Acquire(ctx context.Context, q Quality) (Source, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSourceClosed
	}
	m.gen++
	gen := m.gen
	old := m.cur
	m.cur = nil
	m.mu.Unlock()

	// The old source is released before a new one is acquired so two
	// live captures never coexist.
	if old != nil {
		old.Close()
	}

	src, err := m.engine.NewSource(ctx, q)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		src.Close()
		m.log.Debug().Str("quality", q.Name).Msg("stale source acquisition discarded")
		return nil, ErrSuperseded
	}
	m.cur = src
	m.mu.Unlock()
	return src, nil
}

// Current returns the live source, or nil when none is held.
func (m *SourceManager) Current() Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Close releases the held source and rejects further acquisitions.
func (m *SourceManager) Close() {
	m.mu.Lock()
	cur := m.cur
	m.cur = nil
	m.closed = true
	m.gen++
	m.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}
