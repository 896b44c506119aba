package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/cache"
)

func TestSecondLevel_CommitMakesWritesVisible(t *testing.T) {
	s := NewSecondLevel(cache.NewPerpetual("product"))
	s.Put("k1", "v1")
	_, ok := s.Get("k1")
	assert.False(t, ok, "uncommitted write must not be visible")

	s.Commit()
	v, ok := s.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestSecondLevel_RollbackDiscardsWrites(t *testing.T) {
	s := NewSecondLevel(cache.NewPerpetual("product"))
	s.Put("k1", "v1")
	s.Rollback()
	s.Commit()
	_, ok := s.Get("k1")
	assert.False(t, ok)
}

func TestSecondLevel_FlushNamespaceClearsImmediately(t *testing.T) {
	delegate := cache.NewPerpetual("product")
	delegate.Put("existing", "v")
	s := NewSecondLevel(delegate)
	s.Put("pending", "v2")

	s.FlushNamespace()
	_, ok := s.Get("existing")
	assert.False(t, ok)

	s.Commit()
	_, ok = s.Get("pending")
	assert.False(t, ok, "pending write at time of flush must not resurrect on later commit")
}

func TestSecondLevel_ClearDefersUntilCommit(t *testing.T) {
	delegate := cache.NewPerpetual("product")
	delegate.Put("existing", "v")

	writer := NewSecondLevel(delegate)
	sibling := NewSecondLevel(delegate)

	writer.Clear()
	_, ok := writer.Get("existing")
	assert.False(t, ok, "clearing session must stop reading immediately")
	v, ok := sibling.Get("existing")
	assert.True(t, ok, "sibling keeps its view until the clear commits")
	assert.Equal(t, "v", v)

	writer.Commit()
	_, ok = sibling.Get("existing")
	assert.False(t, ok)
}

func TestSecondLevel_RollbackReleasesBlockedKeys(t *testing.T) {
	blocking := cache.NewBlocking(cache.NewPerpetual("product"))
	miss := NewSecondLevel(blocking)
	_, ok := miss.Get("k1")
	assert.False(t, ok)

	// A rollback without a Put must release k1, or this Get would block
	// forever on the per-key lock still held by the missed Get above.
	miss.Rollback()

	done := make(chan struct{})
	go func() {
		defer close(done)
		other := NewSecondLevel(blocking)
		other.Get("k1")
	}()
	<-done
}
