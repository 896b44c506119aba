// Package config implements the configuration loader: parsing the root
// configuration document and per-mapper documents into the registries the
// rest of the runtime consults.
package config

import (
	"github.com/viant/sqlmapper/alias"
	"github.com/viant/sqlmapper/pool"
)

// Settings mirrors the <settings> element's recognized keys. Unknown keys
// fail the load; see applySetting in loader.go.
type Settings struct {
	CacheEnabled             bool
	LazyLoadingEnabled       bool
	AutoMappingBehavior      string // NONE | PARTIAL | FULL
	DefaultStatementTimeout  int
	DefaultExecutorType      string // SIMPLE | REUSE | BATCH
	MapUnderscoreToCamelCase bool
	MultipleResultSetsEnabled bool
	UseGeneratedKeys        bool
	UseColumnLabel          bool
}

func defaultSettings() Settings {
	return Settings{
		CacheEnabled:            true,
		AutoMappingBehavior:     "PARTIAL",
		DefaultExecutorType:     "SIMPLE",
		UseColumnLabel:          true,
		MultipleResultSetsEnabled: true,
	}
}

// DataSourceConfig captures a <dataSource> element's attributes, adapted
// into a pool.Config plus the connection triple.
type DataSourceConfig struct {
	Type     string // POOLED | UNPOOLED | JNDI (JNDI is unsupported and rejected at load time)
	Driver   string
	URL      string
	Username string
	Password string
	Pool     pool.Config
}

// Environment is one <environment> element: a transaction manager type
// paired with a data source.
type Environment struct {
	ID                     string
	TransactionManagerType string // JDBC | MANAGED
	AutoCommit             bool
	DataSource             *DataSourceConfig
}

// ResultMapping is one <result>/<id>/<association>/<collection> child of a
// <resultMap>.
type ResultMapping struct {
	Property    string
	Column      string
	JavaType    string
	JdbcType    string
	TypeHandler string
	IsID        bool

	// Association/collection specific.
	Nested        *ResultMap // inline nested map, if declared inline
	NestedMapID   string     // resultMap="..." reference, resolved post-parse
	NestedSelect  string     // select="..." statement id for a nested query
	ColumnPrefix  string
	OfType        string
}

// Discriminator is a <discriminator> child of a <resultMap>.
type Discriminator struct {
	Column   string
	JavaType string
	Cases    map[string]string // value -> resultMap id
}

// ResultMap is a fully resolved <resultMap>.
type ResultMap struct {
	ID            string
	Namespace     string
	Type          string
	Extends       string
	Constructor   []ResultMapping
	Mappings      []ResultMapping
	Discriminator *Discriminator
	AutoMapping   *bool // per-map override of the global setting; nil means inherit
}

// SQLFragment is a reusable <sql id="..."> fragment. InnerXML is the raw
// mixed content, compiled lazily by package dynamicsql so this package need
// not depend on the dynamic-SQL node tree.
type SQLFragment struct {
	ID       string
	InnerXML string
}

// Statement is one <select|insert|update|delete>. InnerXML carries the raw
// mixed SQL/tag content for package dynamicsql to compile.
type Statement struct {
	ID           string // namespace + "." + local id
	Namespace    string
	Kind         string // select | insert | update | delete
	InnerXML     string
	ParameterType string
	ResultType    string
	ResultMapID   string
	UseCache      *bool
	FlushCache    *bool
	StatementType string // STATEMENT | PREPARED | CALLABLE
	FetchSize     int
	Timeout       int
	DatabaseID    string
	KeyProperty   string
	KeyColumn     string
	UseGeneratedKeys bool
	SelectKeyID    string // synthetic statement id for a nested <selectKey>, if present
	SelectKeyOrder string // BEFORE | AFTER; meaningful only when SelectKeyID is set
}

// CacheConfig is a <cache>/<cache-ref> element.
type CacheConfig struct {
	Namespace     string
	RefNamespace  string // set when this is a <cache-ref>
	Type          string
	Eviction      string // LRU | FIFO | SOFT | WEAK
	FlushInterval int64  // milliseconds; 0 means no scheduled flush
	Size          int
	ReadOnly      bool
	Blocking      bool
	Properties    map[string]string
}

// Mapper is the parsed content of one mapper XML document.
type Mapper struct {
	Namespace   string
	Cache       *CacheConfig
	ResultMaps  map[string]*ResultMap
	Fragments   map[string]*SQLFragment
	Statements  map[string]*Statement
	ParameterMaps map[string]struct{} // acknowledged but unused: parameterMap is legacy, kept for parse compatibility
}

// Configuration is the fully assembled registry produced by Loader.Load.
type Configuration struct {
	Properties          map[string]string
	Settings            Settings
	Aliases             *alias.Registry
	Environments        map[string]*Environment
	DefaultEnvironment  string
	DatabaseIDProvider  map[string]string // vendor product substring -> short id

	Mappers    map[string]*Mapper    // namespace -> mapper
	Statements map[string]*Statement // fully-qualified id -> statement
	ResultMaps map[string]*ResultMap // fully-qualified id -> result map
	Fragments  map[string]*SQLFragment
	Caches     map[string]*CacheConfig
}

// ActiveEnvironment resolves the environment selected by default= or an
// explicit override.
func (c *Configuration) ActiveEnvironment(override string) *Environment {
	id := c.DefaultEnvironment
	if override != "" {
		id = override
	}
	return c.Environments[id]
}
