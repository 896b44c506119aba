package sqlexec

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/alias"
	"github.com/viant/sqlmapper/config"
	"github.com/viant/sqlmapper/reflection"
	"github.com/viant/sqlmapper/typehandler"
)

type tag struct {
	Value string `db:"tag_value"`
}

type product struct {
	ID   int64 `db:"id"`
	Name string `db:"name"`
	Tags []tag `db:"-"`
}

func newMapper(t *testing.T) *RowMapper {
	aliases := alias.New()
	assert.NoError(t, aliases.Register("Tag", reflect.TypeOf(tag{})))
	return &RowMapper{
		Reflection:          reflection.NewCache(),
		Types:               typehandler.New(),
		Aliases:             aliases,
		AutoMappingBehavior: "PARTIAL",
	}
}

func openJoinDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	assert.NoError(t, err)
	_, err = db.Exec(`create table product(id integer primary key, name text)`)
	assert.NoError(t, err)
	_, err = db.Exec(`create table tag(product_id integer, tag_value text)`)
	assert.NoError(t, err)
	_, err = db.Exec(`insert into product(id, name) values (1, 'widget')`)
	assert.NoError(t, err)
	_, err = db.Exec(`insert into tag(product_id, tag_value) values (1, 'red'), (1, 'large')`)
	assert.NoError(t, err)
	return db
}

func TestRowMapper_Automap(t *testing.T) {
	db := openJoinDB(t)
	defer db.Close()
	rows, err := db.Query(`select id, name from product`)
	assert.NoError(t, err)
	defer rows.Close()

	m := newMapper(t)
	results, err := m.MapRows(context.Background(), rows, reflect.TypeOf(product{}), nil)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	p := results[0].(*product)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "widget", p.Name)
}

func TestRowMapper_ExplicitResultMapWithCollectionAccumulation(t *testing.T) {
	db := openJoinDB(t)
	defer db.Close()
	rows, err := db.Query(`select p.id as id, p.name as name, t.tag_value as tag_value
		from product p join tag t on t.product_id = p.id order by p.id`)
	assert.NoError(t, err)
	defer rows.Close()

	rm := &config.ResultMap{
		ID:   "product.productMap",
		Type: "product",
		Mappings: []config.ResultMapping{
			{Property: "ID", Column: "id", IsID: true},
			{Property: "Name", Column: "name"},
			{Property: "Tags", Column: "tag_value", OfType: "Tag"},
		},
	}

	m := newMapper(t)
	results, err := m.MapRows(context.Background(), rows, reflect.TypeOf(product{}), rm)
	assert.NoError(t, err)
	assert.Len(t, results, 1, "two joined rows sharing id=1 must fold into one product")
	p := results[0].(*product)
	assert.Equal(t, "widget", p.Name)
	assert.Len(t, p.Tags, 2)
	assert.Equal(t, "red", p.Tags[0].Value)
	assert.Equal(t, "large", p.Tags[1].Value)
}
