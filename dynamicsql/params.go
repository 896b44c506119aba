package dynamicsql

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/viant/sqlmapper/expr"
	"github.com/viant/sqlmapper/mapererrors"
)

// hashToken is one #{...} occurrence located in rendered text.
type hashToken struct {
	start, end int // end is exclusive, one past the closing '}'
	inner      string
}

func findHashTokens(text string) []hashToken {
	var toks []hashToken
	i := 0
	for {
		start := strings.Index(text[i:], "#{")
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(text[start+2:], "}")
		if end < 0 {
			break
		}
		end = start + 2 + end
		toks = append(toks, hashToken{start: start, end: end + 1, inner: text[start+2 : end]})
		i = end + 1
	}
	return toks
}

// parseParamToken splits "#{...}" content into the leading property path
// and its comma-separated key=value attributes.
func parseParamToken(inner string) (path string, attrs map[string]string) {
	parts := strings.Split(inner, ",")
	path = strings.TrimSpace(parts[0])
	attrs = map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		attrs[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return path, attrs
}

func rebuildToken(path string, attrs map[string]string) string {
	var b strings.Builder
	b.WriteString(path)
	for _, k := range []string{"javaType", "jdbcType", "typeHandler", "mode", "numericScale"} {
		if v, ok := attrs[k]; ok {
			b.WriteString(",")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(v)
		}
	}
	return b.String()
}

// rewriteForeachParams rewrites every #{item...}/#{index...} token in body
// into a unique synthetic name, resolving and storing its value on ctx
// immediately so the final binding pass in scanParams finds it under that
// name.
func rewriteForeachParams(body, itemName, indexName string, itemValue, indexValue interface{}, ctx *DynamicContext) (string, error) {
	toks := findHashTokens(body)
	if len(toks) == 0 {
		return body, nil
	}
	var b strings.Builder
	last := 0
	for _, t := range toks {
		b.WriteString(body[last:t.start])
		path, attrs := parseParamToken(t.inner)
		head, rest := splitPath(path)
		switch head {
		case itemName:
			v, err := navigateRest(itemValue, rest)
			if err != nil {
				return "", err
			}
			synthetic := ctx.nextSynthetic(itemName)
			ctx.AdditionalParameters[synthetic] = v
			b.WriteString("#{")
			b.WriteString(rebuildToken(synthetic, attrs))
			b.WriteString("}")
		case indexName:
			v, err := navigateRest(indexValue, rest)
			if err != nil {
				return "", err
			}
			synthetic := ctx.nextSynthetic(indexName)
			ctx.AdditionalParameters[synthetic] = v
			b.WriteString("#{")
			b.WriteString(rebuildToken(synthetic, attrs))
			b.WriteString("}")
		default:
			b.WriteString(body[t.start:t.end])
		}
		last = t.end
	}
	b.WriteString(body[last:])
	return b.String(), nil
}

func navigateRest(base interface{}, rest string) (interface{}, error) {
	return navigatePath(base, rest)
}

// navigatePath walks every segment of a dotted/bracketed property path
// (e.g. "a.b[0].c") against base, one expr.Navigate step at a time. expr's
// own Navigate only resolves a single segment, so multi-segment parameter
// paths like "#{order.items[0].sku}" need this on top.
func navigatePath(base interface{}, path string) (interface{}, error) {
	segments := splitPathSegments(path)
	cur := base
	for _, seg := range segments {
		v, err := expr.Navigate(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return cur, nil
}

func splitPathSegments(path string) []string {
	normalized := strings.NewReplacer("[", ".", "]", ".").Replace(path)
	raw := strings.Split(normalized, ".")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// scanParams resolves every remaining #{...} token in text into a '?'
// placeholder plus an ordered Param, looking the property path up first in
// ctx.AdditionalParameters (foreach-emitted), then in root.
func scanParams(text string, ctx *DynamicContext, root interface{}) (string, []Param, error) {
	toks := findHashTokens(text)
	if len(toks) == 0 {
		return text, nil, nil
	}
	var b strings.Builder
	var params []Param
	last := 0
	for _, t := range toks {
		b.WriteString(text[last:t.start])
		path, attrs := parseParamToken(t.inner)
		if _, err := resolveParamValue(path, ctx, root); err != nil {
			return "", nil, err
		}
		b.WriteString("?")
		params = append(params, Param{
			Property:     path,
			JavaType:     attrs["javaType"],
			JdbcType:     attrs["jdbcType"],
			TypeHandler:  attrs["typeHandler"],
			Mode:         attrs["mode"],
			NumericScale: attrs["numericScale"],
		})
		last = t.end
	}
	b.WriteString(text[last:])
	return b.String(), params, nil
}

// ResolveParamValues resolves each Param's final bound value in order,
// exactly as scanParams's own internal pass did; exposed so the executor
// can build the driver argument list without re-deriving the lookup order.
func ResolveParamValues(params []Param, ctx *DynamicContext, root interface{}) ([]interface{}, error) {
	values := make([]interface{}, len(params))
	for i, p := range params {
		v, err := resolveParamValue(p.Property, ctx, root)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func resolveParamValue(path string, ctx *DynamicContext, root interface{}) (interface{}, error) {
	head, rest := splitPath(path)
	if v, ok := ctx.AdditionalParameters[head]; ok {
		return navigateRest(v, rest)
	}
	v, err := resolveRootParam(root, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mapererrors.ErrBinding, err)
	}
	return v, nil
}

func reflectIterate(collection interface{}) ([]interface{}, []interface{}, error) {
	if collection == nil {
		return nil, nil, nil
	}
	rv := reflect.ValueOf(collection)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, rv.Len())
		keys := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
			keys[i] = i
		}
		return items, keys, nil
	case reflect.Map:
		var items, keys []interface{}
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.Interface())
			items = append(items, rv.MapIndex(k).Interface())
		}
		return items, keys, nil
	default:
		return nil, nil, fmt.Errorf("%w: foreach collection is not iterable: %s", mapererrors.ErrBinding, rv.Kind())
	}
}
