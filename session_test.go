package sqlmapper

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/viant/afs"
	_ "github.com/viant/afs/mem"

	"github.com/stretchr/testify/assert"

	_ "github.com/viant/sqlmapper/driver"

	"github.com/viant/sqlmapper/config"
	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/resource"
)

type product struct {
	ID        int64
	Name      string
	UnitPrice float64
}

type productMapper struct {
	SelectById    func(ctx context.Context, id int64) (*product, error)
	SelectAll     func(ctx context.Context) ([]*product, error)
	CountProducts func(ctx context.Context) (int64, error)
	DeleteById    func(ctx context.Context, id int64) (int64, error)
}

const factoryRootXML = `<configuration>
  <properties>
    <property name="db.driver" value="sqlite"/>
  </properties>
  <settings>
    <setting name="cacheEnabled" value="true"/>
    <setting name="mapUnderscoreToCamelCase" value="true"/>
  </settings>
  <typeAliases>
    <typeAlias alias="Product" type="model.Product"/>
  </typeAliases>
  <environments default="dev">
    <environment id="dev">
      <transactionManager type="JDBC"/>
      <dataSource type="POOLED">
        <property name="driver" value="${db.driver}"/>
        <property name="url" value="file::memory:?cache=shared"/>
        <property name="autoCommit" value="true"/>
        <property name="poolMaximumActiveConnections" value="4"/>
      </dataSource>
    </environment>
  </environments>
  <databaseIdProvider type="DB_VENDOR">
    <property name="sqlite" value="sqlite"/>
    <property name="mysql" value="mysql"/>
  </databaseIdProvider>
  <mappers>
    <mapper resource="mem://localhost/conf/product-mapper.xml"/>
  </mappers>
</configuration>`

const productMapperXML = `<mapper namespace="app.ProductMapper">
  <cache eviction="LRU" size="64" readOnly="true"/>

  <sql id="columns">id, name, unit_price</sql>

  <resultMap id="productMap" type="Product">
    <id property="ID" column="id"/>
    <result property="Name" column="name"/>
    <result property="UnitPrice" column="unit_price"/>
  </resultMap>

  <update id="createSchema" flushCache="false">
    create table if not exists product(
      id integer primary key autoincrement,
      name text,
      unit_price real
    )
  </update>

  <insert id="insertProduct" useGeneratedKeys="true" keyProperty="ID">
    insert into product(name, unit_price) values (#{Name}, #{UnitPrice})
  </insert>

  <select id="selectById" resultMap="productMap">
    select <include refid="columns"/> from product where id = #{value}
  </select>

  <select id="selectAll" resultMap="productMap">
    select <include refid="columns"/> from product order by id
  </select>

  <select id="search" resultType="Product">
    select <include refid="columns"/> from product
    <where>
      <if test="name != null">and name = #{name}</if>
      <if test="minPrice != null">and unit_price &gt;= #{minPrice}</if>
    </where>
    order by id
  </select>

  <select id="countProducts" resultType="long">
    select count(*) from product
  </select>

  <update id="updatePrice">
    update product set unit_price = #{price} where id = #{id}
  </update>

  <delete id="deleteById">
    delete from product where id = #{value}
  </delete>

  <delete id="deleteAll">
    delete from product
  </delete>
</mapper>`

func newTestFactory(t *testing.T) *Factory {
	ctx := context.Background()
	fs := afs.New()
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/conf/sqlmapper.xml", os.FileMode(0644), strings.NewReader(factoryRootXML)))
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/conf/product-mapper.xml", os.FileMode(0644), strings.NewReader(productMapperXML)))

	loader := config.NewLoader(resource.New(fs), map[string]reflect.Type{
		"model.Product": reflect.TypeOf(product{}),
	})
	cfg, err := loader.Load(ctx, "mem://localhost/conf/sqlmapper.xml", nil)
	assert.NoError(t, err)

	factory, err := NewFactory(cfg, "")
	assert.NoError(t, err)
	t.Cleanup(func() { _ = factory.Close() })

	session := factory.OpenSession()
	_, err = session.Update(ctx, "app.ProductMapper.createSchema", nil)
	assert.NoError(t, err)
	_, err = session.Delete(ctx, "app.ProductMapper.deleteAll", nil)
	assert.NoError(t, err)
	assert.NoError(t, session.Close())
	return factory
}

func seedProducts(t *testing.T, factory *Factory, names ...string) []int64 {
	ctx := context.Background()
	session := factory.OpenSession()
	defer session.Close()

	ids := make([]int64, 0, len(names))
	for i, name := range names {
		p := &product{Name: name, UnitPrice: float64(i+1) * 10}
		_, err := session.Insert(ctx, "app.ProductMapper.insertProduct", p)
		assert.NoError(t, err)
		assert.NotZero(t, p.ID, "generated key must be read back into the parameter")
		ids = append(ids, p.ID)
	}
	assert.NoError(t, session.Commit(ctx))
	return ids
}

func TestSession_SelectRoundTrip(t *testing.T) {
	factory := newTestFactory(t)
	ids := seedProducts(t, factory, "anvil", "rope", "tent")
	ctx := context.Background()

	session := factory.OpenSession()
	defer session.Close()

	var all []*product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.selectAll", nil, &all))
	assert.Len(t, all, 3)
	assert.Equal(t, "anvil", all[0].Name)
	assert.Equal(t, 30.0, all[2].UnitPrice)

	var one product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.selectById", ids[1], &one))
	assert.Equal(t, "rope", one.Name)

	var count int64
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.countProducts", nil, &count))
	assert.Equal(t, int64(3), count)
}

func TestSession_DynamicWhere(t *testing.T) {
	factory := newTestFactory(t)
	seedProducts(t, factory, "anvil", "rope", "tent")
	ctx := context.Background()

	session := factory.OpenSession()
	defer session.Close()

	var byName []product
	param := map[string]interface{}{"name": "rope"}
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.search", param, &byName))
	assert.Len(t, byName, 1)
	assert.Equal(t, "rope", byName[0].Name)

	var byPrice []product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.search",
		map[string]interface{}{"minPrice": 20.0}, &byPrice))
	assert.Len(t, byPrice, 2)

	var everything []product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.search",
		map[string]interface{}{}, &everything))
	assert.Len(t, everything, 3)
}

func TestSession_RowBounds(t *testing.T) {
	factory := newTestFactory(t)
	seedProducts(t, factory, "a", "b", "c", "d")
	ctx := context.Background()

	session := factory.OpenSession()
	defer session.Close()

	var window []*product
	assert.NoError(t, session.SelectWithBounds(ctx, "app.ProductMapper.selectAll", nil,
		RowBounds{Offset: 1, Limit: 2}, &window))
	assert.Len(t, window, 2)
	assert.Equal(t, "b", window[0].Name)
	assert.Equal(t, "c", window[1].Name)
}

func TestSession_UpdateAndLocalCacheInvalidation(t *testing.T) {
	factory := newTestFactory(t)
	ids := seedProducts(t, factory, "anvil")
	ctx := context.Background()

	session := factory.OpenSession()
	defer session.Close()

	var before product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.selectById", ids[0], &before))

	n, err := session.Update(ctx, "app.ProductMapper.updatePrice",
		map[string]interface{}{"id": ids[0], "price": 99.5})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, session.Commit(ctx))

	var after product
	assert.NoError(t, session.Select(ctx, "app.ProductMapper.selectById", ids[0], &after))
	assert.Equal(t, 99.5, after.UnitPrice, "update must invalidate the cached row")
}

func TestSession_SecondLevelCacheAcrossSessions(t *testing.T) {
	factory := newTestFactory(t)
	ids := seedProducts(t, factory, "anvil")
	ctx := context.Background()

	s1 := factory.OpenSession()
	var first product
	assert.NoError(t, s1.Select(ctx, "app.ProductMapper.selectById", ids[0], &first))
	assert.NoError(t, s1.Commit(ctx))
	assert.NoError(t, s1.Close())

	s2 := factory.OpenSession()
	defer s2.Close()
	var second product
	assert.NoError(t, s2.Select(ctx, "app.ProductMapper.selectById", ids[0], &second))
	assert.Equal(t, first, second)
}

func TestSession_GetMapper(t *testing.T) {
	factory := newTestFactory(t)
	assert.NoError(t, factory.RegisterMapper("app.ProductMapper", (*productMapper)(nil)))
	ids := seedProducts(t, factory, "anvil", "rope")
	ctx := context.Background()

	session := factory.OpenSession()
	defer session.Close()

	var m productMapper
	assert.NoError(t, session.GetMapper(&m))

	p, err := m.SelectById(ctx, ids[0])
	assert.NoError(t, err)
	assert.Equal(t, "anvil", p.Name)

	all, err := m.SelectAll(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := m.CountProducts(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := m.DeleteById(ctx, ids[0])
	assert.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.NoError(t, session.Commit(ctx))

	count, err = m.CountProducts(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSession_UnknownStatementFails(t *testing.T) {
	factory := newTestFactory(t)
	session := factory.OpenSession()
	defer session.Close()

	var dest []product
	err := session.Select(context.Background(), "app.ProductMapper.nope", nil, &dest)
	assert.True(t, errors.Is(err, mapererrors.ErrBinding))
}

func TestResolveDatabaseID(t *testing.T) {
	provider := map[string]string{"sqlite": "sqlite", "postgresql": "pg", "sql": "ansi"}
	assert.Equal(t, "sqlite", resolveDatabaseID(provider, "sqlite", "file::memory:"))
	assert.Equal(t, "pg", resolveDatabaseID(provider, "postgres", "postgresql://localhost/db"))
	assert.Equal(t, "", resolveDatabaseID(nil, "sqlite", ""))
}
