package luaengine

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

const (
	maxReprDepth = 6
	indentUnit   = "  "
)

// Repr renders v as Lua-like source. Strings are single quoted; tables
// list their array part first and then the other keys in sorted order.
// Pretty output puts every entry on its own line.
func Repr(v lua.LValue, pretty bool) string {
	p := &printer{pretty: pretty, active: make(map[*lua.LTable]bool)}
	p.value(v, 0)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	pretty bool
	active map[*lua.LTable]bool
}

func (p *printer) value(v lua.LValue, depth int) {
	switch v := v.(type) {
	case lua.LString:
		p.sb.WriteString(quote(string(v)))
	case *lua.LTable:
		p.table(v, depth)
	case *lua.LNilType:
		p.sb.WriteString("nil")
	default:
		p.sb.WriteString(v.String())
	}
}

type entry struct {
	key string
	val lua.LValue
}

func (p *printer) table(t *lua.LTable, depth int) {
	if p.active[t] || depth >= maxReprDepth {
		p.sb.WriteString("{...}")
		return
	}
	p.active[t] = true
	defer delete(p.active, t)

	var entries []entry
	n := 0
	for ; t.RawGetInt(n+1) != lua.LNil; n++ {
		entries = append(entries, entry{val: t.RawGetInt(n + 1)})
	}
	var keyed []entry
	t.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok && float64(num) == float64(int(num)) && int(num) >= 1 && int(num) <= n {
			return
		}
		keyed = append(keyed, entry{key: keyRepr(k), val: v})
	})
	sort.Slice(keyed, func(i, j int) bool { return keyed[i].key < keyed[j].key })
	entries = append(entries, keyed...)

	if len(entries) == 0 {
		p.sb.WriteString("{}")
		return
	}
	p.sb.WriteString("{")
	for i, e := range entries {
		if p.pretty {
			p.sb.WriteString("\n" + strings.Repeat(indentUnit, depth+1))
		} else if i > 0 {
			p.sb.WriteString(" ")
		}
		if e.key != "" {
			p.sb.WriteString(e.key + " = ")
		}
		p.value(e.val, depth+1)
		if i < len(entries)-1 || p.pretty {
			p.sb.WriteString(",")
		}
	}
	if p.pretty {
		p.sb.WriteString("\n" + strings.Repeat(indentUnit, depth))
	}
	p.sb.WriteString("}")
}

func keyRepr(k lua.LValue) string {
	if s, ok := k.(lua.LString); ok && isIdent(string(s)) {
		return string(s)
	}
	switch k := k.(type) {
	case lua.LString:
		return "[" + quote(string(k)) + "]"
	default:
		return "[" + k.String() + "]"
	}
}

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true, "until": true,
	"while": true,
}

func isIdent(s string) bool {
	if s == "" || luaKeywords[s] {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// quote wraps s in single quotes, escaping quotes, backslashes and
// control characters.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '\'' || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == utf8.RuneError && size == 1, r < 0x20, r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, s[i])
		default:
			sb.WriteRune(r)
		}
		i += size
	}
	sb.WriteByte('\'')
	return sb.String()
}
