// Package dynamicsql implements the dynamic SQL engine: compiling the mixed
// text/tag content of a mapped statement into a node tree once, then
// rendering that tree per invocation against a fresh DynamicContext into
// prepared-statement text plus an ordered parameter list. Property
// navigation and `<if test>`/`<when test>` truthiness come from package
// expr.
package dynamicsql

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/sqlmapper/expr"
	"github.com/viant/sqlmapper/mapererrors"
)

// DynamicContext is the per-invocation state threaded through Render: the
// parameter bindings, the resolved database id (for databaseId-scoped
// statement variants), and the foreach-emitted additional parameters that
// the final binding pass consults ahead of the root parameter object.
type DynamicContext struct {
	Bindings             expr.Bindings
	DatabaseID           string
	AdditionalParameters map[string]interface{}
	counter              int
}

// NewContext seeds a DynamicContext with the expression bindings the
// statement's conditions evaluate against (the session binds the root
// parameter as "_parameter" and the database id as "_databaseId") and the
// resolved database id. Nil bindings start out empty.
func NewContext(bindings expr.Bindings, databaseID string) *DynamicContext {
	if bindings == nil {
		bindings = expr.Bindings{}
	}
	return &DynamicContext{Bindings: bindings, DatabaseID: databaseID, AdditionalParameters: map[string]interface{}{}}
}

func (c *DynamicContext) nextSynthetic(base string) string {
	name := fmt.Sprintf("__frch_%s_%d", base, c.counter)
	c.counter++
	return name
}

// Param is one #{...} occurrence resolved against either the additional
// parameters or the root parameter object.
type Param struct {
	Property     string
	JavaType     string
	JdbcType     string
	TypeHandler  string
	Mode         string
	NumericScale string
}

// CompiledSQL is the result of Compile: a node tree plus whether any
// conditional fragment or inline ${...} was observed during compilation.
type CompiledSQL struct {
	root    node
	Dynamic bool
}

// Render runs the node tree against ctx, then resolves every #{...} token
// in the result into a '?' placeholder plus an ordered Param, honouring the
// additionalParameters-before-root-object lookup order.
func (c *CompiledSQL) Render(ctx *DynamicContext, root interface{}) (string, []Param, error) {
	text, err := c.root.render(ctx)
	if err != nil {
		return "", nil, err
	}
	return scanParams(text, ctx, root)
}

// resolveRootParam navigates name against the root parameter object,
// falling back to expr.Navigate for structs/maps and to the bare value
// itself for a scalar addressed as "value" or "_parameter".
func resolveRootParam(root interface{}, name string) (interface{}, error) {
	if name == "" || name == "_parameter" {
		return root, nil
	}
	if m, ok := root.(map[string]interface{}); ok {
		if v, ok := m[name]; ok {
			return v, nil
		}
	}
	if root != nil {
		rv := reflect.ValueOf(root)
		if rv.Kind() != reflect.Map && rv.Kind() != reflect.Struct &&
			!(rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct) {
			// scalar parameter, e.g. a single int/string arg bound as "value"
			if name == "value" {
				return root, nil
			}
		}
	}
	v, err := navigatePath(root, name)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve parameter %q: %v", mapererrors.ErrBinding, name, err)
	}
	return v, nil
}

func splitPath(name string) (head, rest string) {
	idx := strings.IndexAny(name, ".[")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}
