package sqlexec

import (
	"sync"

	"github.com/viant/sqlmapper/cache"
)

// releaser is satisfied by cache.Blocking: a delegate whose per-key lock,
// taken by a missed Get, must be let go when the session that missed never
// produces a Put for that key.
type releaser interface {
	Release(key string)
}

// SecondLevel wraps a namespace-scoped package cache.Cache with a
// transactional write buffer: puts made during an open session are held in
// pending and only become visible to Get once Commit flushes them, while
// Rollback discards them untouched. Clear defers too: entries stay readable
// by other sessions until this one commits. Missed keys are tracked so a
// blocking delegate's per-key lock is always released, even when the session
// rolls back before loading the value.
type SecondLevel struct {
	delegate cache.Cache

	mu            sync.Mutex
	pending       map[string]interface{}
	removed       map[string]bool
	missed        map[string]bool
	clearOnCommit bool
}

// NewSecondLevel wraps delegate with transactional buffering.
func NewSecondLevel(delegate cache.Cache) *SecondLevel {
	return &SecondLevel{
		delegate: delegate,
		pending:  map[string]interface{}{},
		removed:  map[string]bool{},
		missed:   map[string]bool{},
	}
}

// Get consults only what is already committed to delegate; values Put during
// the still-open session are not visible until Commit, and after a deferred
// Clear nothing is visible to this session even though siblings still read
// the old entries.
func (s *SecondLevel) Get(key string) (interface{}, bool) {
	v, ok := s.delegate.Get(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.missed[key] = true
		return nil, false
	}
	if s.clearOnCommit {
		return nil, false
	}
	return v, true
}

// Put buffers value under key until Commit. If the delegate is blocking, the
// per-key lock a prior missed Get acquired is released now, not at commit,
// so sibling sessions stop waiting as soon as the value is known.
func (s *SecondLevel) Put(key string, value interface{}) {
	s.mu.Lock()
	delete(s.removed, key)
	wasMissed := s.missed[key]
	delete(s.missed, key)
	s.pending[key] = value
	s.mu.Unlock()

	if wasMissed {
		if r, ok := s.delegate.(releaser); ok {
			r.Release(key)
		}
	}
}

// Invalidate buffers a removal of key until Commit.
func (s *SecondLevel) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	s.removed[key] = true
}

// Clear defers a full flush of the namespace until Commit: this session stops
// reading the delegate immediately, sibling sessions keep their view until
// the mutation is actually committed.
func (s *SecondLevel) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearOnCommit = true
	s.pending = map[string]interface{}{}
	s.removed = map[string]bool{}
}

// Commit flushes the deferred clear and every buffered put and removal into
// delegate, then releases any still-missed blocking keys.
func (s *SecondLevel) Commit() {
	s.mu.Lock()
	pending, removed, missed := s.pending, s.removed, s.missed
	clearAll := s.clearOnCommit
	s.pending, s.removed, s.missed = map[string]interface{}{}, map[string]bool{}, map[string]bool{}
	s.clearOnCommit = false
	s.mu.Unlock()

	if clearAll {
		s.delegate.Clear()
	}
	for k := range removed {
		s.delegate.Remove(k)
	}
	for k, v := range pending {
		s.delegate.Put(k, v)
	}
	s.releaseMissed(missed, pending)
}

// Rollback discards every buffered put, removal and deferred clear without
// touching delegate, releasing any blocking keys this session's misses still
// hold.
func (s *SecondLevel) Rollback() {
	s.mu.Lock()
	missed := s.missed
	s.pending = map[string]interface{}{}
	s.removed = map[string]bool{}
	s.missed = map[string]bool{}
	s.clearOnCommit = false
	s.mu.Unlock()

	s.releaseMissed(missed, nil)
}

func (s *SecondLevel) releaseMissed(missed map[string]bool, alreadyPut map[string]interface{}) {
	r, ok := s.delegate.(releaser)
	if !ok {
		return
	}
	for k := range missed {
		if _, done := alreadyPut[k]; done {
			continue
		}
		r.Release(k)
	}
}

// FlushNamespace clears delegate immediately, bypassing the transactional
// buffer, and discards any still-pending writes so they cannot resurrect
// stale entries on a later Commit. For eager cross-session invalidation;
// statement-driven flushes go through the deferred Clear instead.
func (s *SecondLevel) FlushNamespace() {
	s.mu.Lock()
	s.pending = map[string]interface{}{}
	s.removed = map[string]bool{}
	s.mu.Unlock()
	s.delegate.Clear()
}

// ID returns the wrapped cache's identity, typically the owning namespace.
func (s *SecondLevel) ID() string { return s.delegate.ID() }
