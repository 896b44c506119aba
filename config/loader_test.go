package config

import (
	"context"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/viant/afs"
	_ "github.com/viant/afs/mem"

	"github.com/stretchr/testify/assert"

	"github.com/viant/sqlmapper/resource"
)

type product struct {
	ID   int
	Name string
}

const rootXML = `<configuration>
  <properties>
    <property name="db.driver" value="sqlite"/>
    <property name="db.url" value="file::memory:"/>
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
        <property name="url" value="${db.url}"/>
        <property name="username" value="${db.user:guest}"/>
      </dataSource>
    </environment>
  </environments>
  <databaseIdProvider type="DB_VENDOR">
    <property name="SQLite" value="sqlite"/>
  </databaseIdProvider>
  <mappers>
    <mapper resource="mem://localhost/mappers/product.xml"/>
  </mappers>
</configuration>`

const mapperXML = `<mapper namespace="product">
  <resultMap id="base" type="Product">
    <id property="ID" column="id"/>
    <result property="Name" column="name"/>
  </resultMap>
  <resultMap id="extended" type="Product" extends="base">
    <result property="Name" column="display_name"/>
  </resultMap>
  <sql id="cols">id, name</sql>
  <select id="find" resultMap="base">
    select <include refid="cols"/> from product
    <where>
      <if test="id != null">id = #{id}</if>
    </where>
  </select>
  <insert id="add" parameterType="Product">
    insert into product(name) values(#{Name})
  </insert>
  <insert id="addWithKey" parameterType="Product">
    <selectKey keyProperty="ID" resultType="long" order="AFTER">
      select last_insert_rowid()
    </selectKey>
    insert into product(name) values(#{Name})
  </insert>
</mapper>`

func setupFS(t *testing.T) afs.Service {
	fs := afs.New()
	ctx := context.Background()
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/config.xml", os.FileMode(0644), strings.NewReader(rootXML)))
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/mappers/product.xml", os.FileMode(0644), strings.NewReader(mapperXML)))
	return fs
}

func TestLoader_Load(t *testing.T) {
	fs := setupFS(t)
	loc := resource.New(fs)
	loader := NewLoader(loc, map[string]reflect.Type{"model.Product": reflect.TypeOf(product{})})

	cfg, err := loader.Load(context.Background(), "mem://localhost/config.xml", nil)
	assert.NoError(t, err)

	assert.True(t, cfg.Settings.CacheEnabled)
	assert.True(t, cfg.Settings.MapUnderscoreToCamelCase)

	pt, ok := cfg.Aliases.Resolve("Product")
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(product{}), pt)

	env := cfg.ActiveEnvironment("")
	assert.NotNil(t, env)
	assert.Equal(t, "sqlite", env.DataSource.Driver)
	assert.Equal(t, "file::memory:", env.DataSource.URL)
	assert.Equal(t, "guest", env.DataSource.Username)

	assert.Equal(t, "sqlite", cfg.DatabaseIDProvider["SQLite"])

	base, ok := cfg.ResultMaps["product.base"]
	assert.True(t, ok)
	assert.Len(t, base.Mappings, 2)

	extended, ok := cfg.ResultMaps["product.extended"]
	assert.True(t, ok)
	assert.Len(t, extended.Mappings, 3) // inherited id+name, plus overriding result

	frag, ok := cfg.Fragments["product.cols"]
	assert.True(t, ok)
	assert.Equal(t, "id, name", frag.InnerXML)

	find, ok := cfg.Statements["product.find"]
	assert.True(t, ok)
	assert.Equal(t, "select", find.Kind)
	assert.Equal(t, "product.base", find.ResultMapID)

	add, ok := cfg.Statements["product.add"]
	assert.True(t, ok)
	assert.Equal(t, "insert", add.Kind)
	assert.Empty(t, add.SelectKeyID)

	withKey, ok := cfg.Statements["product.addWithKey"]
	assert.True(t, ok)
	assert.Equal(t, "product.addWithKey!selectKey", withKey.SelectKeyID)
	assert.Equal(t, "AFTER", withKey.SelectKeyOrder)

	selectKey, ok := cfg.Statements["product.addWithKey!selectKey"]
	assert.True(t, ok)
	assert.Equal(t, "select", selectKey.Kind)
	assert.Equal(t, "ID", selectKey.KeyProperty)
	assert.Equal(t, "long", selectKey.ResultType)
	assert.Contains(t, selectKey.InnerXML, "last_insert_rowid")
}

func TestLoader_UnknownSettingFails(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()
	bad := `<configuration><settings><setting name="bogus" value="1"/></settings></configuration>`
	assert.NoError(t, fs.Upload(ctx, "mem://localhost/bad.xml", os.FileMode(0644), strings.NewReader(bad)))

	loader := NewLoader(resource.New(fs), nil)
	_, err := loader.Load(ctx, "mem://localhost/bad.xml", nil)
	assert.Error(t, err)
}

func TestSubstitute_DefaultsAndMissing(t *testing.T) {
	props := map[string]string{"a": "1"}
	assert.Equal(t, "1", substitute("${a}", props))
	assert.Equal(t, "fallback", substitute("${b:fallback}", props))
	assert.Equal(t, "${c}", substitute("${c}", props))
}
