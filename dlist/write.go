package dlist

import (
	"fmt"
	"strings"
)

// SerializeNode formats a node alone, with no surrounding timestamp, verb,
// or trailing CRLF. Used to store an opaque sub-value (a mailbox's
// annotations, a mailbox-message's flags) as re-parseable wire bytes
// inside the index.
func SerializeNode(n *Node) []byte {
	var b strings.Builder
	writeNode(&b, n)
	return []byte(b.String())
}

func writeNode(b *strings.Builder, n *Node) {
	if n == nil {
		b.WriteString("NIL")
		return
	}
	switch n.Kind {
	case KindAtom:
		writeAtom(b, n.Atom)
	case KindList:
		b.WriteByte('(')
		for i, item := range n.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeNode(b, item)
		}
		b.WriteByte(')')
	case KindKV:
		b.WriteString("%(")
		for i, kv := range n.Pairs {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(kv.Key)
			b.WriteByte(' ')
			writeNode(b, kv.Value)
		}
		b.WriteByte(')')
	}
}

// needsLiteral reports whether s must be encoded as an IMAP literal rather
// than a bare token or quoted string: it contains bytes a quoted string
// cannot carry safely (NUL, CR, LF). Other values, message content
// included, are written as tokens or quoted strings.
func needsLiteral(s string) bool {
	return strings.ContainsAny(s, "\x00\r\n")
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " ()%\"\\")
}

func writeAtom(b *strings.Builder, s string) {
	switch {
	case needsLiteral(s):
		fmt.Fprintf(b, "{%d+}\r\n%s", len(s), s)
	case needsQuoting(s):
		b.WriteByte('"')
		for _, r := range s {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	default:
		b.WriteString(s)
	}
}
