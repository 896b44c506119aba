// Package sqlmapper binds user-declared mapper functions to parameterised
// SQL statements defined in XML configuration, executes them through a
// pooled database connection, and projects result rows into user-defined
// record shapes. The Factory assembles the immutable runtime from a loaded
// configuration; Sessions opened from it carry the mutable per-conversation
// state (transaction, first-level cache, statement handles).
package sqlmapper

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/sqlparser"

	"github.com/viant/sqlmapper/binding"
	"github.com/viant/sqlmapper/cache"
	"github.com/viant/sqlmapper/config"
	"github.com/viant/sqlmapper/dynamicsql"
	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/pool"
	"github.com/viant/sqlmapper/reflection"
	"github.com/viant/sqlmapper/sqlexec"
	"github.com/viant/sqlmapper/tx"
	"github.com/viant/sqlmapper/typehandler"
)

// Factory is the process-wide runtime assembled from one loaded
// configuration: the registries are read-only after NewFactory returns, so
// a Factory is safe for concurrent use; the Sessions it opens are not.
type Factory struct {
	cfg         *config.Configuration
	environment *config.Environment
	databaseID  string

	db   *sql.DB
	pool *pool.Pool

	types       *typehandler.Registry
	reflections *reflection.Cache
	chain       *sqlexec.Chain
	reader      *sqlexec.AutoReader
	mappers     *binding.Registry

	mu       sync.Mutex
	compiled map[string]*compiledStatement
	caches   map[string]cache.Cache
}

// compiledStatement pairs a registered statement with its once-compiled
// dynamic SQL tree.
type compiledStatement struct {
	stmt *config.Statement
	sql  *dynamicsql.CompiledSQL
}

// NewFactory opens the active environment's data source and assembles the
// runtime. environment overrides the configuration's default= selection when
// non-empty.
func NewFactory(cfg *config.Configuration, environment string) (*Factory, error) {
	env := cfg.ActiveEnvironment(environment)
	if env == nil {
		return nil, fmt.Errorf("%w: no environment matches %q (default %q)",
			mapererrors.ErrConfig, environment, cfg.DefaultEnvironment)
	}
	ds := env.DataSource
	if ds == nil || ds.Driver == "" {
		return nil, fmt.Errorf("%w: environment %q has no usable dataSource", mapererrors.ErrConfig, env.ID)
	}

	db, err := sql.Open(ds.Driver, dsnOf(ds))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s data source: %v", mapererrors.ErrDataStore, ds.Driver, err)
	}

	f := &Factory{
		cfg:         cfg,
		environment: env,
		databaseID:  resolveDatabaseID(cfg.DatabaseIDProvider, ds.Driver, ds.URL),
		db:          db,
		pool: pool.New(ds.Pool, ds.URL, ds.Username, ds.Password, func(ctx context.Context) (*sql.Conn, error) {
			return db.Conn(ctx)
		}),
		types:       typehandler.New(),
		reflections: reflection.NewCache(),
		chain:       sqlexec.NewChain(),
		mappers:     binding.NewRegistry(),
		compiled:    map[string]*compiledStatement{},
		caches:      map[string]cache.Cache{},
	}
	f.reader = &sqlexec.AutoReader{DB: db, Chain: f.chain}
	if err := f.buildCaches(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return f, nil
}

// dsnOf resolves the ${username}/${password} placeholders a dataSource URL
// may carry, keeping credentials out of the URL attribute itself.
func dsnOf(ds *config.DataSourceConfig) string {
	dsn := strings.ReplaceAll(ds.URL, "${username}", ds.Username)
	return strings.ReplaceAll(dsn, "${password}", ds.Password)
}

// resolveDatabaseID matches the databaseIdProvider's vendor substrings
// against the driver name and URL, longest first so "postgresql" wins over
// "sql". An empty result disables databaseId statement discrimination.
func resolveDatabaseID(provider map[string]string, driver, url string) string {
	if len(provider) == 0 {
		return ""
	}
	keys := make([]string, 0, len(provider))
	for k := range provider {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	haystack := strings.ToLower(driver + " " + url)
	for _, k := range keys {
		if strings.Contains(haystack, strings.ToLower(k)) {
			return provider[k]
		}
	}
	return ""
}

// buildCaches constructs one decorated cache per namespace. Namespaces with
// <cache-ref> share the referenced namespace's instance; refs to namespaces
// not yet built are drained through an incomplete queue until fixed point,
// and anything still unresolved then names a missing namespace.
func (f *Factory) buildCaches() error {
	var pending []*config.CacheConfig
	for _, cc := range f.cfg.Caches {
		if cc.RefNamespace != "" {
			pending = append(pending, cc)
			continue
		}
		f.caches[cc.Namespace] = buildCacheStack(cc)
	}
	for len(pending) > 0 {
		progressed := false
		var still []*config.CacheConfig
		for _, cc := range pending {
			if shared, ok := f.caches[cc.RefNamespace]; ok {
				f.caches[cc.Namespace] = shared
				progressed = true
				continue
			}
			still = append(still, cc)
		}
		pending = still
		if !progressed && len(pending) > 0 {
			return fmt.Errorf("%w: cache-ref in namespace %q refers to unknown namespace %q",
				mapererrors.ErrConfig, pending[0].Namespace, pending[0].RefNamespace)
		}
	}
	return nil
}

// buildCacheStack composes the decorator chain for one <cache> element. The
// order is fixed: eviction sits innermost over the perpetual backing map,
// then scheduled flush, serialization, logging, the synchronizing lock, and
// a blocking wrapper outermost when requested, so locking is always the
// boundary the executor sees.
func buildCacheStack(cc *config.CacheConfig) cache.Cache {
	var c cache.Cache = cache.NewPerpetual(cc.Namespace)
	size := cc.Size
	if size <= 0 {
		size = 1024
	}
	switch strings.ToUpper(cc.Eviction) {
	case "", "LRU":
		c = cache.NewLru(c, size)
	case "FIFO":
		c = cache.NewFifo(c, size)
	case "SOFT":
		c = cache.Soft(c, size)
	case "WEAK":
		c = cache.NewWeak(c)
	default:
		c = cache.NewLru(c, size)
	}
	if cc.FlushInterval > 0 {
		c = cache.NewScheduled(c, time.Duration(cc.FlushInterval)*time.Millisecond)
	}
	if !cc.ReadOnly {
		c = cache.NewSerialized(c)
	}
	c = cache.NewLogging(c)
	c = cache.NewSynchronized(c)
	if cc.Blocking {
		c = cache.NewBlocking(c)
	}
	return c
}

// Configuration exposes the read-only configuration the factory was built
// from.
func (f *Factory) Configuration() *config.Configuration { return f.cfg }

// TypeHandlers exposes the handler registry for application registrations
// (custom domain types) before sessions are opened.
func (f *Factory) TypeHandlers() *typehandler.Registry { return f.types }

// Use registers an interceptor around the (target, method, argTypes) triple;
// registration order is preserved, first registered runs outermost.
func (f *Factory) Use(target, method string, argTypes []reflect.Type, interceptor sqlexec.Interceptor) {
	f.chain.Register(target, method, argTypes, interceptor)
}

// RegisterMapper associates a mapper struct type with the namespace whose
// statements implement it, enabling Session.GetMapper for that type.
func (f *Factory) RegisterMapper(namespace string, prototype interface{}) error {
	if _, ok := f.cfg.Mappers[namespace]; !ok {
		return fmt.Errorf("%w: no mapper namespace %q in configuration", mapererrors.ErrBinding, namespace)
	}
	return f.mappers.Register(namespace, prototype)
}

// Pool exposes the connection pool, mainly for its Stats.
func (f *Factory) Pool() *pool.Pool { return f.pool }

// SessionOptions tunes one session; zero values inherit the configuration's
// environment and settings.
type SessionOptions struct {
	AutoCommit   *bool
	ExecutorType sqlexec.ExecutorType
	Isolation    tx.IsolationLevel
}

// OpenSession opens a session with the environment's autoCommit setting and
// the configured default executor type.
func (f *Factory) OpenSession() *Session {
	return f.OpenSessionWith(SessionOptions{})
}

// OpenSessionWith opens a session with explicit overrides.
func (f *Factory) OpenSessionWith(opts SessionOptions) *Session {
	autoCommit := f.environment.AutoCommit
	if opts.AutoCommit != nil {
		autoCommit = *opts.AutoCommit
	}
	execType := opts.ExecutorType
	if execType == "" {
		execType = sqlexec.ExecutorType(strings.ToUpper(f.cfg.Settings.DefaultExecutorType))
	}
	if execType == "" {
		execType = sqlexec.Simple
	}

	var transaction tx.Tx
	switch strings.ToUpper(f.environment.TransactionManagerType) {
	case "MANAGED":
		// Externally-managed demarcation: the runtime never begins or ends a
		// transaction itself, each statement commits on its own.
		transaction = tx.NewManaged(f.pool, opts.Isolation, true)
	default: // JDBC
		transaction = tx.NewManaged(f.pool, opts.Isolation, autoCommit)
	}

	s := &Session{
		factory:     f,
		transaction: transaction,
		executor:    sqlexec.NewExecutor(execType, transaction, f.chain),
		local:       sqlexec.NewLocalCache(),
		second:      map[string]*sqlexec.SecondLevel{},
		autoCommit:  autoCommit,
	}
	s.rowMapper = &sqlexec.RowMapper{
		Reflection:               f.reflections,
		Types:                    f.types,
		Aliases:                  f.cfg.Aliases,
		AutoMappingBehavior:      f.cfg.Settings.AutoMappingBehavior,
		MapUnderscoreToCamelCase: f.cfg.Settings.MapUnderscoreToCamelCase,
		ResolveResultMap: func(id string) (*config.ResultMap, bool) {
			rm, ok := f.cfg.ResultMaps[id]
			return rm, ok
		},
		NestedSelect: s.nestedSelect,
	}
	return s
}

// Close releases the underlying database handle. Sessions opened earlier
// must be closed first.
func (f *Factory) Close() error {
	return f.db.Close()
}

// compiledFor compiles a statement's dynamic SQL tree on first use and
// memoises it; the statement registry itself is immutable so compilation is
// idempotent.
func (f *Factory) compiledFor(statementID string) (*compiledStatement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.compiled[statementID]; ok {
		return c, nil
	}
	stmt, ok := f.cfg.Statements[statementID]
	if !ok {
		return nil, fmt.Errorf("%w: no mapped statement %q", mapererrors.ErrBinding, statementID)
	}
	compiled, err := dynamicsql.Compile(stmt.InnerXML, func(refid string) (string, bool) {
		if !strings.Contains(refid, ".") {
			refid = stmt.Namespace + "." + refid
		}
		fragment, ok := f.cfg.Fragments[refid]
		if !ok {
			return "", false
		}
		return fragment.InnerXML, true
	})
	if err != nil {
		return nil, err
	}
	c := &compiledStatement{stmt: stmt, sql: compiled}
	f.compiled[statementID] = c
	return c, nil
}

// declaredRowType resolves the row type a select statement declares, via its
// resultMap's type or its resultType alias; both may be absent when the
// caller's destination supplies the type instead.
func (f *Factory) declaredRowType(stmt *config.Statement) (reflect.Type, *config.ResultMap, error) {
	var rm *config.ResultMap
	if stmt.ResultMapID != "" {
		rm = f.cfg.ResultMaps[stmt.ResultMapID]
		if rm == nil {
			return nil, nil, fmt.Errorf("%w: statement %s refers to unknown resultMap %q",
				mapererrors.ErrConfig, stmt.ID, stmt.ResultMapID)
		}
	}
	typeName := stmt.ResultType
	if rm != nil && rm.Type != "" {
		typeName = rm.Type
	}
	if typeName == "" {
		return nil, rm, nil
	}
	t, ok := f.cfg.Aliases.Resolve(typeName)
	if !ok {
		return nil, rm, fmt.Errorf("%w: statement %s declares unresolvable type %q",
			mapererrors.ErrConfig, stmt.ID, typeName)
	}
	return t, rm, nil
}

// queryTable extracts the primary FROM target of a rendered select for the
// diagnostic breadcrumb; statements the parser cannot digest simply go
// without one.
func queryTable(sqlText string) string {
	parsed, _ := sqlparser.ParseQuery(sqlText)
	if parsed == nil || parsed.From.X == nil {
		return ""
	}
	return sqlparser.Stringify(parsed.From.X)
}
