// Package errctx carries diagnostic breadcrumbs through the call graph so
// that failures surfaced deep inside configuration loading or execution can
// be rendered with enough context to locate the offending resource/statement
// without depending on thread-local state.
package errctx

import (
	"fmt"
	"strings"
)

// Context is an explicit, immutable breadcrumb trail. Each call site that
// wants to add diagnostic detail calls Store, which returns a new Context
// wrapping the parent. Nothing is mutated in place, so a Context is safe to
// share across goroutines and to fork.
type Context struct {
	parent   *Context
	Resource string
	Activity string
	Object   string
	SQL      string
	Cause    error
}

// Store returns a child context with the supplied fields layered over the
// parent's. Empty fields do not overwrite inherited values.
func (c *Context) Store(fields Context) *Context {
	fields.parent = c
	return &fields
}

// Recall renders the full breadcrumb trail, most specific first, as a
// stable multi-line diagnostic suitable for appending to an error message.
func (c *Context) Recall() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for cur := c; cur != nil; cur = cur.parent {
		line := cur.line()
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func (c *Context) line() string {
	var parts []string
	if c.Resource != "" {
		parts = append(parts, "resource: "+c.Resource)
	}
	if c.Activity != "" {
		parts = append(parts, "activity: "+c.Activity)
	}
	if c.Object != "" {
		parts = append(parts, "object: "+c.Object)
	}
	if c.SQL != "" {
		parts = append(parts, "sql: "+c.SQL)
	}
	if c.Cause != nil {
		parts = append(parts, "cause: "+c.Cause.Error())
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

// Wrap enriches err with the breadcrumb trail, preserving the cause chain via
// %w so callers can still errors.Is/As through to the original error.
func Wrap(ctx *Context, err error) error {
	if err == nil {
		return nil
	}
	trail := ctx.Recall()
	if trail == "" {
		return err
	}
	return fmt.Errorf("%w\n%s", err, trail)
}
