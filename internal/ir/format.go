package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format renders a value in Candid text syntax.
func Format(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case Null:
		b.WriteString("null")
	case Text:
		b.WriteString(QuoteText(string(val)))
	case Number:
		b.WriteString(string(val))
	case Nat:
		fmt.Fprintf(b, "%s : nat", groupDigits(val.Big().String()))
	case Int:
		n := val.Big()
		sign := ""
		if n.Sign() >= 0 {
			sign = "+"
		}
		fmt.Fprintf(b, "%s%s : int", sign, groupDigits(n.String()))
	case Nat8, Nat16, Nat32, Nat64, Int8, Int16, Int32, Int64:
		fmt.Fprintf(b, "%s : %s", groupDigits(fmt.Sprint(val)), val.Type())
	case Float32:
		fmt.Fprintf(b, "%s : float32", formatFloat(float64(val), 32))
	case Float64:
		fmt.Fprintf(b, "%s : float64", formatFloat(float64(val), 64))
	case Opt:
		b.WriteString("opt ")
		writeValue(b, val.V)
	case None:
		b.WriteString("null")
	case Blob:
		b.WriteString("blob ")
		b.WriteString(QuoteBlob(val))
	case Vec:
		if bs, ok := BytesOf(val); ok && len(val) > 0 {
			b.WriteString("blob ")
			b.WriteString(QuoteBlob(bs))
			return
		}
		b.WriteString("vec {")
		for i, item := range val {
			if i > 0 {
				b.WriteString(";")
			}
			b.WriteString(" ")
			writeValue(b, item)
		}
		if len(val) > 0 {
			b.WriteString(" ")
		}
		b.WriteString("}")
	case Record:
		b.WriteString("record {")
		labels := make([]Label, len(val))
		for i, f := range val {
			labels[i] = f.Label
		}
		tuple := isTupleLabels(labels)
		for i, f := range val {
			if i > 0 {
				b.WriteString(";")
			}
			b.WriteString(" ")
			if !tuple {
				b.WriteString(f.Label.String())
				b.WriteString(" = ")
			}
			writeValue(b, f.Value)
		}
		if len(val) > 0 {
			b.WriteString(" ")
		}
		b.WriteString("}")
	case Variant:
		b.WriteString("variant { ")
		b.WriteString(val.Field.Label.String())
		if _, unit := val.Field.Value.(Null); !unit {
			b.WriteString(" = ")
			writeValue(b, val.Field.Value)
		}
		b.WriteString(" }")
	case PrincipalValue:
		fmt.Fprintf(b, "principal %q", val.Principal.String())
	case Service:
		fmt.Fprintf(b, "service %q", val.Principal.String())
	case FuncRef:
		fmt.Fprintf(b, "func %q.%s", val.Principal.String(), quoteIfNeeded(val.Method))
	case Reserved:
		b.WriteString("null : reserved")
	default:
		fmt.Fprintf(b, "<%T>", v)
	}
}

// Stringify renders a value for text concatenation: text is unquoted,
// numbers and principals print bare, everything else uses Candid syntax.
func Stringify(v Value) string {
	switch val := v.(type) {
	case Text:
		return string(val)
	case Number:
		return string(val)
	case Nat:
		return val.Big().String()
	case Int:
		return val.Big().String()
	case Nat8, Nat16, Nat32, Nat64, Int8, Int16, Int32, Int64:
		return fmt.Sprint(val)
	case Float32:
		return formatFloat(float64(val), 32)
	case Float64:
		return formatFloat(float64(val), 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case PrincipalValue:
		return val.Principal.String()
	case Null, None:
		return "null"
	}
	return Format(v)
}

func formatFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsAny(s, ".eEnN") {
		s += "."
	}
	return s
}

// groupDigits inserts underscores every three digits, as Candid prints numbers.
func groupDigits(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte('_')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// QuoteText escapes a string using Candid text escapes.
func QuoteText(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// QuoteBlob renders bytes with printable ASCII kept and everything else hex-escaped.
func QuoteBlob(bs []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range bs {
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f && utf8.RuneStart(c):
			b.WriteByte(c)
		default:
			b.WriteByte('\\')
			b.WriteString(hex.EncodeToString([]byte{c}))
		}
	}
	b.WriteByte('"')
	return b.String()
}

func (v Bool) String() string           { return Format(v) }
func (v Null) String() string           { return Format(v) }
func (v Text) String() string           { return Format(v) }
func (v Number) String() string         { return Format(v) }
func (v Nat) String() string            { return Format(v) }
func (v Int) String() string            { return Format(v) }
func (v Nat8) String() string           { return strconv.FormatUint(uint64(v), 10) }
func (v Nat16) String() string          { return strconv.FormatUint(uint64(v), 10) }
func (v Nat32) String() string          { return strconv.FormatUint(uint64(v), 10) }
func (v Nat64) String() string          { return strconv.FormatUint(uint64(v), 10) }
func (v Int8) String() string           { return strconv.FormatInt(int64(v), 10) }
func (v Int16) String() string          { return strconv.FormatInt(int64(v), 10) }
func (v Int32) String() string          { return strconv.FormatInt(int64(v), 10) }
func (v Int64) String() string          { return strconv.FormatInt(int64(v), 10) }
func (v Float32) String() string        { return Format(v) }
func (v Float64) String() string        { return Format(v) }
func (v Opt) String() string            { return Format(v) }
func (v None) String() string           { return Format(v) }
func (v Vec) String() string            { return Format(v) }
func (v Blob) String() string           { return Format(v) }
func (v Record) String() string         { return Format(v) }
func (v Variant) String() string        { return Format(v) }
func (v PrincipalValue) String() string { return Format(v) }
func (v Service) String() string        { return Format(v) }
func (v FuncRef) String() string        { return Format(v) }
func (v Reserved) String() string       { return Format(v) }
