package config

import (
	"context"
	"encoding/xml"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/viant/afs/url"

	"github.com/viant/sqlmapper/alias"
	"github.com/viant/sqlmapper/mapererrors"
	"github.com/viant/sqlmapper/pool"
	"github.com/viant/sqlmapper/resource"
)

// Loader parses a root configuration document and its referenced mapper
// documents into a Configuration. TypeRegistry resolves the Go type bound
// to each `type`/`javaType`/`resultType`/`parameterType` string found in the
// XML. There is no dynamic class loading in Go, so the application wires
// its domain types in once, up front.
type Loader struct {
	Locator      *resource.Locator
	TypeRegistry map[string]reflect.Type
}

// NewLoader builds a Loader backed by locator for resolving mapper resource
// references relative to the root configuration's location.
func NewLoader(locator *resource.Locator, typeRegistry map[string]reflect.Type) *Loader {
	return &Loader{Locator: locator, TypeRegistry: typeRegistry}
}

// Load parses rootLocation and every mapper document it references,
// applying overrideProps on top of whatever <properties> declares: that
// element's own values are populated from inline children, a local file, or
// a URL, then runtime overrides take precedence over all of them.
func (l *Loader) Load(ctx context.Context, rootLocation string, overrideProps map[string]string) (*Configuration, error) {
	data, err := l.Locator.Read(ctx, rootLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: read configuration %s: %v", mapererrors.ErrConfig, rootLocation, err)
	}
	var doc xmlConfiguration
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse configuration %s: %v", mapererrors.ErrConfig, rootLocation, err)
	}

	cfg := &Configuration{
		Properties:         map[string]string{},
		Settings:           defaultSettings(),
		Aliases:            alias.New(),
		Environments:       map[string]*Environment{},
		DatabaseIDProvider: map[string]string{},
		Mappers:            map[string]*Mapper{},
		Statements:         map[string]*Statement{},
		ResultMaps:         map[string]*ResultMap{},
		Fragments:          map[string]*SQLFragment{},
		Caches:             map[string]*CacheConfig{},
	}

	if err := l.loadProperties(ctx, doc.Properties, cfg.Properties); err != nil {
		return nil, err
	}
	for k, v := range overrideProps {
		cfg.Properties[k] = v
	}

	if doc.Settings != nil {
		for _, s := range doc.Settings.Setting {
			if err := applySetting(&cfg.Settings, s.Name, substitute(s.Value, cfg.Properties)); err != nil {
				return nil, err
			}
		}
	}

	if doc.TypeAliases != nil {
		for _, ta := range doc.TypeAliases.TypeAlias {
			t, ok := l.TypeRegistry[ta.Type]
			if !ok {
				return nil, fmt.Errorf("%w: typeAlias %q refers to unregistered type %q", mapererrors.ErrConfig, ta.Alias, ta.Type)
			}
			if err := cfg.Aliases.Register(ta.Alias, t); err != nil {
				return nil, err
			}
		}
	}

	if doc.Environments != nil {
		cfg.DefaultEnvironment = doc.Environments.Default
		for _, e := range doc.Environments.Environment {
			env, err := l.buildEnvironment(e, cfg.Properties)
			if err != nil {
				return nil, err
			}
			cfg.Environments[env.ID] = env
		}
		if _, ok := cfg.Environments[cfg.DefaultEnvironment]; cfg.DefaultEnvironment != "" && !ok {
			return nil, fmt.Errorf("%w: default environment %q not declared", mapererrors.ErrConfig, cfg.DefaultEnvironment)
		}
	}

	if doc.DatabaseIdProvider != nil {
		for _, p := range doc.DatabaseIdProvider.Property {
			cfg.DatabaseIDProvider[p.Name] = p.Value
		}
	}

	if doc.Mappers != nil {
		base := url.Join(rootLocation, "..")
		var pendingResultMaps []*ResultMap
		for _, ref := range doc.Mappers.Mapper {
			loc := ref.Resource
			if loc == "" {
				loc = ref.URL
			}
			if loc == "" {
				continue
			}
			if !strings.Contains(loc, "://") {
				loc = url.Join(base, loc)
			}
			mapper, err := l.loadMapper(ctx, loc)
			if err != nil {
				return nil, err
			}
			if err := mergeMapper(cfg, mapper); err != nil {
				return nil, err
			}
			for _, rm := range mapper.ResultMaps {
				pendingResultMaps = append(pendingResultMaps, rm)
			}
		}
		if err := resolveResultMapExtends(cfg, pendingResultMaps); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (l *Loader) loadProperties(ctx context.Context, el *xmlPropertiesElem, out map[string]string) error {
	if el == nil {
		return nil
	}
	loc := el.Resource
	if loc == "" {
		loc = el.URL
	}
	if loc != "" {
		data, err := l.Locator.Read(ctx, loc)
		if err != nil {
			return fmt.Errorf("%w: read properties %s: %v", mapererrors.ErrConfig, loc, err)
		}
		var props xmlPropertiesElem
		if err := xml.Unmarshal([]byte("<properties>"+string(data)+"</properties>"), &props); err != nil {
			return fmt.Errorf("%w: parse properties %s: %v", mapererrors.ErrConfig, loc, err)
		}
		for _, p := range props.Property {
			out[p.Name] = p.Value
		}
	}
	for _, p := range el.Property {
		out[p.Name] = p.Value
	}
	return nil
}

func (l *Loader) buildEnvironment(e xmlEnvironment, props map[string]string) (*Environment, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("%w: environment missing id", mapererrors.ErrConfig)
	}
	env := &Environment{
		ID:                     e.ID,
		TransactionManagerType: e.TransactionManager.Type,
	}

	ds := &DataSourceConfig{Type: e.DataSource.Type}
	values := map[string]string{}
	for _, p := range e.DataSource.Property {
		values[p.Name] = substitute(p.Value, props)
	}
	ds.Driver = values["driver"]
	ds.URL = values["url"]
	ds.Username = values["username"]
	ds.Password = values["password"]
	ds.Pool = pool.Config{
		MaxActive:       atoiOr(values["poolMaximumActiveConnections"], 10),
		MaxIdle:         atoiOr(values["poolMaximumIdleConnections"], 5),
		MaxCheckoutTime: durationMillisOr(values["poolMaximumCheckoutTime"], 20000),
		WaitTime:        durationMillisOr(values["poolTimeToWait"], 20000),
		MaxBadTolerance: atoiOr(values["poolMaximumLocalBadConnectionTolerance"], 3),
		PingQuery:       values["poolPingQuery"],
		PingEnabled:     values["poolPingEnabled"] == "true",
		PingIfIdleFor:   durationMillisOr(values["poolPingConnectionsNotUsedFor"], 0),
	}
	env.AutoCommit = values["autoCommit"] == "true"
	if strings.EqualFold(ds.Type, "JNDI") {
		return nil, fmt.Errorf("%w: dataSource type JNDI is not supported", mapererrors.ErrConfig)
	}
	env.DataSource = ds
	return env, nil
}

func (l *Loader) loadMapper(ctx context.Context, location string) (*Mapper, error) {
	data, err := l.Locator.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: read mapper %s: %v", mapererrors.ErrConfig, location, err)
	}
	var doc xmlMapperDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse mapper %s: %v", mapererrors.ErrConfig, location, err)
	}
	if doc.Namespace == "" {
		return nil, fmt.Errorf("%w: mapper %s missing namespace", mapererrors.ErrConfig, location)
	}

	m := &Mapper{
		Namespace:  doc.Namespace,
		ResultMaps: map[string]*ResultMap{},
		Fragments:  map[string]*SQLFragment{},
		Statements: map[string]*Statement{},
	}

	if doc.CacheRef != nil {
		m.Cache = &CacheConfig{Namespace: doc.Namespace, RefNamespace: doc.CacheRef.Namespace}
	} else if doc.Cache != nil {
		props := map[string]string{}
		for _, p := range doc.Cache.Property {
			props[p.Name] = p.Value
		}
		m.Cache = &CacheConfig{
			Namespace:     doc.Namespace,
			Type:          doc.Cache.Type,
			Eviction:      orDefault(doc.Cache.Eviction, "LRU"),
			FlushInterval: int64(atoiOr(doc.Cache.FlushInterval, 0)),
			Size:          atoiOr(doc.Cache.Size, 1024),
			ReadOnly:      doc.Cache.ReadOnly == "true",
			Blocking:      doc.Cache.Blocking == "true",
			Properties:    props,
		}
	}

	for _, s := range doc.Sql {
		id := doc.Namespace + "." + s.ID
		m.Fragments[id] = &SQLFragment{ID: id, InnerXML: s.InnerXML}
	}

	for _, rm := range doc.ResultMap {
		resultMap, err := buildResultMap(doc.Namespace, rm)
		if err != nil {
			return nil, err
		}
		m.ResultMaps[resultMap.ID] = resultMap
	}

	addStatements := func(kind string, stmts []xmlStatement) error {
		for _, s := range stmts {
			stmt, err := buildStatement(doc.Namespace, kind, s)
			if err != nil {
				return err
			}
			if kind == "insert" {
				selectKey, err := extractSelectKey(stmt)
				if err != nil {
					return err
				}
				if selectKey != nil {
					m.Statements[selectKey.ID] = selectKey
				}
			}
			m.Statements[stmt.ID] = stmt
		}
		return nil
	}
	if err := addStatements("select", doc.Select); err != nil {
		return nil, err
	}
	if err := addStatements("insert", doc.Insert); err != nil {
		return nil, err
	}
	if err := addStatements("update", doc.Update); err != nil {
		return nil, err
	}
	if err := addStatements("delete", doc.Delete); err != nil {
		return nil, err
	}

	return m, nil
}

func buildResultMap(namespace string, rm xmlResultMap) (*ResultMap, error) {
	id := rm.ID
	if !strings.Contains(id, ".") {
		id = namespace + "." + id
	}
	out := &ResultMap{ID: id, Namespace: namespace, Type: rm.Type, Extends: qualify(namespace, rm.Extends)}
	if rm.AutoMapping != "" {
		v := rm.AutoMapping == "true"
		out.AutoMapping = &v
	}
	if rm.Constructor != nil {
		for _, f := range rm.Constructor.IDArg {
			out.Constructor = append(out.Constructor, toMapping(f, true))
		}
		for _, f := range rm.Constructor.Arg {
			out.Constructor = append(out.Constructor, toMapping(f, false))
		}
	}
	for _, f := range rm.ID_ {
		out.Mappings = append(out.Mappings, toMapping(f, true))
	}
	for _, f := range rm.Result {
		out.Mappings = append(out.Mappings, toMapping(f, false))
	}
	for _, a := range rm.Association {
		out.Mappings = append(out.Mappings, ResultMapping{
			Property:     a.Property,
			Column:       a.Column,
			JavaType:     a.JavaType,
			NestedMapID:  qualify(namespace, a.ResultMap),
			NestedSelect: qualify(namespace, a.Select),
			ColumnPrefix: a.ColumnPrefix,
		})
	}
	for _, c := range rm.Collection {
		out.Mappings = append(out.Mappings, ResultMapping{
			Property:     c.Property,
			Column:       c.Column,
			JavaType:     c.JavaType,
			OfType:       c.OfType,
			NestedMapID:  qualify(namespace, c.ResultMap),
			NestedSelect: qualify(namespace, c.Select),
			ColumnPrefix: c.ColumnPrefix,
		})
	}
	if rm.Discriminator != nil {
		cases := map[string]string{}
		for _, cs := range rm.Discriminator.Case {
			cases[cs.Value] = qualify(namespace, cs.ResultMap)
		}
		out.Discriminator = &Discriminator{Column: rm.Discriminator.Column, JavaType: rm.Discriminator.JavaType, Cases: cases}
	}
	return out, nil
}

func toMapping(f xmlResultField, isID bool) ResultMapping {
	return ResultMapping{
		Property:    f.Property,
		Column:      f.Column,
		JavaType:    f.JavaType,
		JdbcType:    f.JdbcType,
		TypeHandler: f.TypeHandler,
		IsID:        isID,
	}
}

func buildStatement(namespace, kind string, s xmlStatement) (*Statement, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: %s in namespace %s missing id", mapererrors.ErrConfig, kind, namespace)
	}
	stmt := &Statement{
		ID:               namespace + "." + s.ID,
		Namespace:        namespace,
		Kind:             kind,
		InnerXML:         s.InnerXML,
		ParameterType:    s.ParameterType,
		ResultType:       s.ResultType,
		ResultMapID:      qualify(namespace, s.ResultMap),
		StatementType:    orDefault(s.StatementType, "PREPARED"),
		FetchSize:        atoiOr(s.FetchSize, 0),
		Timeout:          atoiOr(s.Timeout, 0),
		DatabaseID:       s.DatabaseID,
		KeyProperty:      s.KeyProperty,
		KeyColumn:        s.KeyColumn,
		UseGeneratedKeys: s.UseGeneratedKeys == "true",
	}
	if s.UseCache != "" {
		v := s.UseCache == "true"
		stmt.UseCache = &v
	}
	if s.FlushCache != "" {
		v := s.FlushCache == "true"
		stmt.FlushCache = &v
	}
	return stmt, nil
}

// extractSelectKey pulls a nested <selectKey> out of an insert statement's
// raw content and registers it as a synthetic select statement the executor
// runs before or after the insert, per its order attribute. The element is
// left in place in InnerXML; the dynamic-SQL compiler skips elements it does
// not recognise, so only the synthetic statement ever renders its body.
func extractSelectKey(stmt *Statement) (*Statement, error) {
	if !strings.Contains(stmt.InnerXML, "<selectKey") {
		return nil, nil
	}
	var probe struct {
		SelectKey *xmlSelectKey `xml:"selectKey"`
	}
	if err := xml.Unmarshal([]byte("<_s>"+stmt.InnerXML+"</_s>"), &probe); err != nil {
		return nil, fmt.Errorf("%w: parse selectKey of %s: %v", mapererrors.ErrConfig, stmt.ID, err)
	}
	if probe.SelectKey == nil {
		return nil, nil
	}
	sk := probe.SelectKey
	if sk.KeyProperty == "" {
		return nil, fmt.Errorf("%w: selectKey of %s missing keyProperty", mapererrors.ErrConfig, stmt.ID)
	}
	synthetic := &Statement{
		ID:            stmt.ID + "!selectKey",
		Namespace:     stmt.Namespace,
		Kind:          "select",
		InnerXML:      sk.InnerXML,
		ResultType:    sk.ResultType,
		KeyProperty:   sk.KeyProperty,
		StatementType: "PREPARED",
	}
	stmt.SelectKeyID = synthetic.ID
	stmt.SelectKeyOrder = strings.ToUpper(orDefault(sk.Order, "AFTER"))
	return synthetic, nil
}

func qualify(namespace, ref string) string {
	if ref == "" || strings.Contains(ref, ".") {
		return ref
	}
	return namespace + "." + ref
}

func mergeMapper(cfg *Configuration, m *Mapper) error {
	if _, exists := cfg.Mappers[m.Namespace]; exists {
		return fmt.Errorf("%w: mapper namespace %q declared twice", mapererrors.ErrConfig, m.Namespace)
	}
	cfg.Mappers[m.Namespace] = m
	if m.Cache != nil {
		cfg.Caches[m.Namespace] = m.Cache
	}
	for id, f := range m.Fragments {
		cfg.Fragments[id] = f
	}
	for id, rm := range m.ResultMaps {
		cfg.ResultMaps[id] = rm
	}
	for id, s := range m.Statements {
		cfg.Statements[id] = s
	}
	return nil
}

// resolveResultMapExtends drains the "incomplete" queue of result maps
// declaring extends="..." until every one has its parent's constructor and
// mappings merged in ahead of its own, or fixed point is reached with
// unresolved entries left.
func resolveResultMapExtends(cfg *Configuration, pending []*ResultMap) error {
	remaining := make([]*ResultMap, 0, len(pending))
	for _, rm := range pending {
		if rm.Extends != "" {
			remaining = append(remaining, rm)
		}
	}
	resolved := map[string]bool{}
	for {
		progressed := false
		var stillPending []*ResultMap
		for _, rm := range remaining {
			parent, ok := cfg.ResultMaps[rm.Extends]
			if !ok || (parent.Extends != "" && !resolved[parent.ID]) {
				stillPending = append(stillPending, rm)
				continue
			}
			rm.Constructor = append(append([]ResultMapping{}, parent.Constructor...), rm.Constructor...)
			rm.Mappings = append(append([]ResultMapping{}, parent.Mappings...), rm.Mappings...)
			if rm.AutoMapping == nil {
				rm.AutoMapping = parent.AutoMapping
			}
			if rm.Discriminator == nil {
				rm.Discriminator = parent.Discriminator
			}
			resolved[rm.ID] = true
			progressed = true
		}
		remaining = stillPending
		if len(remaining) == 0 {
			return nil
		}
		if !progressed {
			return fmt.Errorf("%w: unresolved resultMap extends reference, starting at %q missing %q",
				mapererrors.ErrConfig, remaining[0].ID, remaining[0].Extends)
		}
	}
}

func applySetting(s *Settings, name, value string) error {
	switch name {
	case "cacheEnabled":
		s.CacheEnabled = value == "true"
	case "lazyLoadingEnabled":
		s.LazyLoadingEnabled = value == "true"
	case "autoMappingBehavior":
		s.AutoMappingBehavior = value
	case "defaultStatementTimeout":
		s.DefaultStatementTimeout = atoiOr(value, 0)
	case "defaultExecutorType":
		s.DefaultExecutorType = value
	case "mapUnderscoreToCamelCase":
		s.MapUnderscoreToCamelCase = value == "true"
	case "multipleResultSetsEnabled":
		s.MultipleResultSetsEnabled = value == "true"
	case "useGeneratedKeys":
		s.UseGeneratedKeys = value == "true"
	case "useColumnLabel":
		s.UseColumnLabel = value == "true"
	default:
		return fmt.Errorf("%w: unrecognized setting %q", mapererrors.ErrConfig, name)
	}
	return nil
}

// substitute implements the `${name}`/`${name:default}` placeholder rule
// for configuration values. SQL parameter placeholders (#{...}) and SQL-body
// ${...} are never passed through this function; those are resolved per
// call by package dynamicsql, not at load time.
func substitute(s string, props map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+start])
		rest := s[i+start+2:]
		end := strings.Index(rest, "}")
		if end < 0 {
			b.WriteString(s[i+start:])
			break
		}
		expr := rest[:end]
		name, def, hasDefault := expr, "", false
		if idx := strings.Index(expr, ":"); idx >= 0 {
			name, def, hasDefault = expr[:idx], expr[idx+1:], true
		}
		if v, ok := props[name]; ok {
			b.WriteString(v)
		} else if hasDefault {
			b.WriteString(def)
		} else {
			b.WriteString("${" + expr + "}")
		}
		i += start + 2 + end + 1
	}
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoiOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationMillisOr(v string, defMillis int) time.Duration {
	n := atoiOr(v, defMillis)
	return time.Duration(n) * time.Millisecond
}
