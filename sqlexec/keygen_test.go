package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/reflection"
)

type insertedProduct struct {
	ID   int64 `db:"id"`
	Name string `db:"name"`
}

type fakeResult struct{ id int64 }

func (f fakeResult) LastInsertId() (int64, error) { return f.id, nil }
func (f fakeResult) RowsAffected() (int64, error) { return 1, nil }

func TestApplyGeneratedKey_SetsIDField(t *testing.T) {
	target := &insertedProduct{Name: "widget"}
	err := ApplyGeneratedKey(fakeResult{id: 7}, "id", target, reflection.NewCache())
	assert.NoError(t, err)
	assert.Equal(t, int64(7), target.ID)
}

func TestApplySelectKeyValue_SetsIDField(t *testing.T) {
	target := &insertedProduct{Name: "widget"}
	err := ApplySelectKeyValue(int64(42), "id", target, reflection.NewCache())
	assert.NoError(t, err)
	assert.Equal(t, int64(42), target.ID)
}

func TestApplyGeneratedKey_MapTarget(t *testing.T) {
	target := map[string]interface{}{"name": "widget"}
	err := ApplyGeneratedKey(fakeResult{id: 9}, "id", target, reflection.NewCache())
	assert.NoError(t, err)
	assert.Equal(t, int64(9), target["id"])
}
