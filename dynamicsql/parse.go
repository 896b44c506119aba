package dynamicsql

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/viant/sqlmapper/mapererrors"
)

// FragmentResolver looks up a <sql id="..."> fragment's raw inner content by
// its fully-qualified refid, as stored in a Configuration's Fragments map.
type FragmentResolver func(refid string) (string, bool)

// Compile walks innerXML once into a node tree, resolving every <include>
// at compile time by cloning the referenced fragment and substituting its
// declared <property> children.
func Compile(innerXML string, resolve FragmentResolver) (*CompiledSQL, error) {
	list, dynamic, err := parseXML(innerXML, resolve)
	if err != nil {
		return nil, err
	}
	return &CompiledSQL{root: list, Dynamic: dynamic}, nil
}

func parseXML(content string, resolve FragmentResolver) (nodeList, bool, error) {
	d := xml.NewDecoder(strings.NewReader("<_root>" + content + "</_root>"))
	tok, err := d.Token()
	if err != nil {
		return nil, false, fmt.Errorf("%w: parse dynamic SQL: %v", mapererrors.ErrConfig, err)
	}
	if _, ok := tok.(xml.StartElement); !ok {
		return nil, false, fmt.Errorf("%w: malformed dynamic SQL content", mapererrors.ErrConfig)
	}
	return parseNodes(d, resolve)
}

func parseNodes(d *xml.Decoder, resolve FragmentResolver) (nodeList, bool, error) {
	var list nodeList
	dynamic := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return list, dynamic, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			raw := string(t)
			if strings.TrimSpace(raw) == "" {
				continue
			}
			list = append(list, &textNode{raw: raw})
			if strings.Contains(raw, "${") {
				dynamic = true
			}
		case xml.StartElement:
			n, dyn, err := parseElement(d, t, resolve)
			if err != nil {
				return nil, false, err
			}
			if dyn {
				dynamic = true
			}
			if n != nil {
				list = append(list, n)
			}
		case xml.EndElement:
			return list, dynamic, nil
		}
	}
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func splitPipe(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseElement(d *xml.Decoder, start xml.StartElement, resolve FragmentResolver) (node, bool, error) {
	attrs := attrMap(start.Attr)
	switch start.Name.Local {
	case "if":
		children, _, err := parseNodes(d, resolve)
		if err != nil {
			return nil, false, err
		}
		return &ifNode{test: attrs["test"], children: children}, true, nil

	case "choose":
		return parseChoose(d, resolve)

	case "where":
		children, _, err := parseNodes(d, resolve)
		if err != nil {
			return nil, false, err
		}
		return newWhereNode(children), true, nil

	case "set":
		children, _, err := parseNodes(d, resolve)
		if err != nil {
			return nil, false, err
		}
		return newSetNode(children), true, nil

	case "trim":
		children, _, err := parseNodes(d, resolve)
		if err != nil {
			return nil, false, err
		}
		return &trimNode{
			prefix:          attrs["prefix"],
			suffix:          attrs["suffix"],
			prefixOverrides: splitPipe(attrs["prefixOverrides"]),
			suffixOverrides: splitPipe(attrs["suffixOverrides"]),
			children:        children,
		}, true, nil

	case "foreach":
		children, _, err := parseNodes(d, resolve)
		if err != nil {
			return nil, false, err
		}
		return &foreachNode{
			collection: attrs["collection"],
			item:       attrs["item"],
			index:      attrs["index"],
			open:       attrs["open"],
			close:      attrs["close"],
			separator:  attrs["separator"],
			children:   children,
		}, true, nil

	case "bind":
		if err := d.Skip(); err != nil {
			return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
		}
		return &bindNode{name: attrs["name"], value: attrs["value"]}, true, nil

	case "include":
		return parseInclude(d, attrs["refid"], resolve)

	default:
		if err := d.Skip(); err != nil {
			return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
		}
		return nil, false, nil
	}
}

func parseChoose(d *xml.Decoder, resolve FragmentResolver) (node, bool, error) {
	var whens []whenBranch
	var otherwise node
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "when":
				children, _, err := parseNodes(d, resolve)
				if err != nil {
					return nil, false, err
				}
				whens = append(whens, whenBranch{test: attrMap(t.Attr)["test"], children: children})
			case "otherwise":
				children, _, err := parseNodes(d, resolve)
				if err != nil {
					return nil, false, err
				}
				otherwise = children
			default:
				if err := d.Skip(); err != nil {
					return nil, false, err
				}
			}
		case xml.EndElement:
			return &chooseNode{whens: whens, otherwise: otherwise}, true, nil
		}
	}
}

func parseInclude(d *xml.Decoder, refid string, resolve FragmentResolver) (node, bool, error) {
	props := map[string]string{}
loop:
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "property" {
				a := attrMap(t.Attr)
				props[a["name"]] = a["value"]
			}
			if err := d.Skip(); err != nil {
				return nil, false, fmt.Errorf("%w: %v", mapererrors.ErrConfig, err)
			}
		case xml.EndElement:
			break loop
		}
	}
	fragment, ok := resolve(refid)
	if !ok {
		return nil, false, fmt.Errorf("%w: unresolved <include refid=%q>", mapererrors.ErrConfig, refid)
	}
	substituted := substituteIncludeProps(fragment, props)
	list, dynamic, err := parseXML(substituted, resolve)
	if err != nil {
		return nil, false, err
	}
	return list, dynamic, nil
}

// substituteIncludeProps is the compile-time counterpart of the config
// package's runtime `${name}` substitution: it resolves only the properties
// declared on this particular <include>, leaving any other ${...}
// reference untouched for per-call rendering.
func substituteIncludeProps(s string, props map[string]string) string {
	if len(props) == 0 {
		return s
	}
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
		name := rest[:end]
		if v, ok := props[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString("${" + name + "}")
		}
		i += start + 2 + end + 1
	}
	return b.String()
}
