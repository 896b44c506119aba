package dynamicsql

import (
	"fmt"
	"strings"

	"github.com/viant/sqlmapper/expr"
)

type node interface {
	render(ctx *DynamicContext) (string, error)
}

type nodeList []node

// sqlJoiner accumulates rendered fragments the way the dynamic context's SQL
// builder must: each non-empty fragment is trimmed and appended with a
// single separating space, so adjacent fragments never fuse into one token
// and whitespace inside the source document does not leak into the output.
type sqlJoiner struct {
	b strings.Builder
}

func (j *sqlJoiner) add(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	if j.b.Len() > 0 {
		j.b.WriteByte(' ')
	}
	j.b.WriteString(fragment)
}

func (j *sqlJoiner) String() string { return j.b.String() }

func (list nodeList) render(ctx *DynamicContext) (string, error) {
	var j sqlJoiner
	for _, n := range list {
		s, err := n.render(ctx)
		if err != nil {
			return "", err
		}
		j.add(s)
	}
	return j.String(), nil
}

// textNode is literal SQL possibly containing inline ${...} references,
// re-evaluated on every render.
type textNode struct{ raw string }

func (t *textNode) render(ctx *DynamicContext) (string, error) {
	return substituteDollar(t.raw, ctx)
}

// substituteDollar implements the `${name}` interpolation rule: the whole
// expression before an optional ':' is looked up via package expr's path
// navigation (falling back to _parameter), the remainder (if any) is a
// literal default used only when the lookup yields nil.
func substituteDollar(s string, ctx *DynamicContext) (string, error) {
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
		expr_ := rest[:end]
		name, def, hasDefault := expr_, "", false
		if idx := strings.Index(expr_, ":"); idx >= 0 {
			name, def, hasDefault = expr_[:idx], expr_[idx+1:], true
		}
		v, err := expr.Lookup(ctx.Bindings, name)
		if err != nil {
			return "", err
		}
		if v == nil && hasDefault {
			b.WriteString(def)
		} else {
			b.WriteString(fmt.Sprintf("%v", valueOrEmpty(v)))
		}
		i += start + 2 + end + 1
	}
	return b.String(), nil
}

func valueOrEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}

// ifNode includes children only when test is truthy.
type ifNode struct {
	test     string
	children node
}

func (n *ifNode) render(ctx *DynamicContext) (string, error) {
	v, err := expr.Eval(n.test, ctx.Bindings)
	if err != nil {
		return "", err
	}
	if !expr.Truthy(v) {
		return "", nil
	}
	return n.children.render(ctx)
}

type whenBranch struct {
	test     string
	children node
}

// chooseNode renders the first matching when, else otherwise if present.
type chooseNode struct {
	whens     []whenBranch
	otherwise node
}

func (n *chooseNode) render(ctx *DynamicContext) (string, error) {
	for _, w := range n.whens {
		v, err := expr.Eval(w.test, ctx.Bindings)
		if err != nil {
			return "", err
		}
		if expr.Truthy(v) {
			return w.children.render(ctx)
		}
	}
	if n.otherwise != nil {
		return n.otherwise.render(ctx)
	}
	return "", nil
}

// trimNode implements where/set/trim uniformly.
type trimNode struct {
	prefix, suffix                   string
	prefixOverrides, suffixOverrides []string
	children                         node
}

func (n *trimNode) render(ctx *DynamicContext) (string, error) {
	body, err := n.children.render(ctx)
	if err != nil {
		return "", err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", nil
	}
	body = stripOverride(body, n.prefixOverrides, true)
	body = stripOverride(body, n.suffixOverrides, false)
	body = strings.TrimSpace(body)
	if body == "" {
		return "", nil
	}
	var b strings.Builder
	if n.prefix != "" {
		b.WriteString(n.prefix)
	}
	b.WriteString(body)
	if n.suffix != "" {
		b.WriteString(n.suffix)
	}
	return b.String(), nil
}

func stripOverride(body string, overrides []string, leading bool) string {
	for _, o := range overrides {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if leading {
			candidate := strings.TrimLeft(body, " \t\r\n")
			if len(candidate) >= len(o) && strings.EqualFold(candidate[:len(o)], o) {
				return candidate[len(o):]
			}
		} else {
			candidate := strings.TrimRight(body, " \t\r\n")
			if len(candidate) >= len(o) && strings.EqualFold(candidate[len(candidate)-len(o):], o) {
				return candidate[:len(candidate)-len(o)]
			}
		}
	}
	return body
}

func newWhereNode(children node) *trimNode {
	return &trimNode{prefix: "WHERE ", prefixOverrides: []string{"AND ", "OR ", "AND", "OR"}, children: children}
}

func newSetNode(children node) *trimNode {
	return &trimNode{prefix: "SET ", suffixOverrides: []string{","}, children: children}
}

// foreachNode iterates a collection/array/map, binding item/index per
// iteration and rewriting #{item...}/#{index...} references into unique
// synthetic names registered on ctx.AdditionalParameters.
type foreachNode struct {
	collection               string
	item, index              string
	open, close, separator   string
	children                 node
}

func (n *foreachNode) render(ctx *DynamicContext) (string, error) {
	collection, err := expr.Lookup(ctx.Bindings, n.collection)
	if err != nil {
		return "", err
	}
	items, keys, err := iterate(collection)
	if err != nil {
		return "", err
	}

	var parts []string
	for i, item := range items {
		iterBindings := expr.Bindings{}
		for k, v := range ctx.Bindings {
			iterBindings[k] = v
		}
		if n.item != "" {
			iterBindings[n.item] = item
		}
		indexVal := keys[i]
		if n.index != "" {
			iterBindings[n.index] = indexVal
		}
		iterCtx := &DynamicContext{Bindings: iterBindings, DatabaseID: ctx.DatabaseID, AdditionalParameters: ctx.AdditionalParameters, counter: ctx.counter}
		body, err := n.children.render(iterCtx)
		if err != nil {
			return "", err
		}
		ctx.counter = iterCtx.counter
		rewritten, err := rewriteForeachParams(body, n.item, n.index, item, indexVal, ctx)
		if err != nil {
			return "", err
		}
		parts = append(parts, rewritten)
	}
	if len(parts) == 0 {
		return "", nil
	}

	var j sqlJoiner
	j.add(n.open)
	for i, part := range parts {
		if i > 0 {
			j.add(n.separator)
		}
		j.add(part)
	}
	j.add(n.close)
	return j.String(), nil
}

func iterate(collection interface{}) (items []interface{}, keys []interface{}, err error) {
	switch v := collection.(type) {
	case nil:
		return nil, nil, nil
	case []interface{}:
		for i, e := range v {
			items = append(items, e)
			keys = append(keys, i)
		}
		return items, keys, nil
	case map[string]interface{}:
		for k, e := range v {
			items = append(items, e)
			keys = append(keys, k)
		}
		return items, keys, nil
	}
	return reflectIterate(collection)
}

// bindNode evaluates value and stores it under name in the bindings, making
// it visible to subsequent nodes in document order.
type bindNode struct {
	name, value string
}

func (n *bindNode) render(ctx *DynamicContext) (string, error) {
	v, err := expr.Eval(n.value, ctx.Bindings)
	if err != nil {
		return "", err
	}
	ctx.Bindings[n.name] = v
	return "", nil
}
