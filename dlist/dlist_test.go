package dlist

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineSimpleKV(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("12345 MAILBOX %(UNIQUEID U1 MBOXNAME INBOX LAST_UID 0)\r\n"))
	ts, verb, kv, err := ParseLine(r)
	require.NoError(t, err)
	require.Equal(t, int64(12345), ts)
	require.Equal(t, "MAILBOX", verb)
	require.Equal(t, "U1", kv.Get("UNIQUEID").String())
	require.Equal(t, "INBOX", kv.Get("MBOXNAME").String())
	require.Equal(t, "0", kv.Get("LAST_UID").String())
}

func TestParseLineSkipsComments(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("# cyrus backup: chunk start 1\r\n10 MAILBOX %(UNIQUEID U1)\r\n"))
	ts, verb, kv, err := ParseLine(r)
	require.NoError(t, err)
	require.Equal(t, int64(10), ts)
	require.Equal(t, "MAILBOX", verb)
	require.Equal(t, "U1", kv.Get("UNIQUEID").String())
}

func TestParseLineNestedListAndLiteral(t *testing.T) {
	line := "1 APPLY %(UNIQUEID U1 RECORD (%(UID 1 FLAGS (\\Seen)) %(UID 2 FLAGS ())) NOTE {5+}\r\nhi\r\nx)\r\n"
	r := bufio.NewReader(strings.NewReader(line))
	_, _, kv, err := ParseLine(r)
	require.NoError(t, err)
	records := kv.Get("RECORD")
	require.NotNil(t, records)
	require.Equal(t, KindList, records.Kind)
	require.Len(t, records.Items, 2)
	require.Equal(t, "1", records.Items[0].Get("UID").String())
	note := kv.Get("NOTE")
	require.Equal(t, "hi\r\nx", note.String())
}

func TestSerializeRoundTrip(t *testing.T) {
	kv := NewKV(
		KV{"UNIQUEID", Atom("U1")},
		KV{"LAST_UID", AtomU32(42)},
		KV{"HIGHESTMODSEQ", AtomU64(99999999999)},
		KV{"FLAGS", NewList(Atom("\\Seen"), Atom("\\Answered"))},
		KV{"NOTE", Atom("has space")},
		KV{"BIN", Atom("binary\x00data")},
	)
	out := Serialize(1700000000, "MAILBOX", kv)

	r := bufio.NewReader(strings.NewReader(string(out)))
	ts, verb, parsed, err := ParseLine(r)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), ts)
	require.Equal(t, "MAILBOX", verb)
	require.Equal(t, "U1", parsed.Get("UNIQUEID").String())
	u32, err := parsed.Get("LAST_UID").Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), u32)
	u64, err := parsed.Get("HIGHESTMODSEQ").Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(99999999999), u64)
	require.Equal(t, "has space", parsed.Get("NOTE").String())
	require.Equal(t, "binary\x00data", parsed.Get("BIN").String())
	flags := parsed.Get("FLAGS")
	require.Len(t, flags.Items, 2)
	require.Equal(t, "\\Seen", flags.Items[0].String())
}

func TestParseGUIDRoundTrip(t *testing.T) {
	const hex40 = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	g, err := ParseGUID(hex40)
	require.NoError(t, err)
	require.Equal(t, hex40, g.String())
	require.False(t, g.IsZero())

	_, err = ParseGUID("too-short")
	require.Error(t, err)
}

func TestParseLineEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, _, _, err := ParseLine(r)
	require.Error(t, err)
}

func TestParseLineMalformed(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("not-a-timestamp VERB %(A B)\r\n"))
	_, _, _, err := ParseLine(r)
	require.Error(t, err)
}
