package backup

import (
	"bytes"
	"encoding/hex"

	"github.com/cyrusbackup/backup/dlist"
)

// testGUID builds a deterministic, valid 40-hex-character guid so tests
// don't need to hand-write 40 hex digits for every fixture.
func testGUID(tag byte) string {
	return hex.EncodeToString(bytes.Repeat([]byte{tag}, 20))
}

func mailboxPayload(uniqueID, mboxname string) *dlist.Node {
	return dlist.NewKV(
		dlist.KV{Key: "uniqueid", Value: dlist.Atom(uniqueID)},
		dlist.KV{Key: "mboxname", Value: dlist.Atom(mboxname)},
		dlist.KV{Key: "mboxtype", Value: dlist.Atom("")},
		dlist.KV{Key: "last_uid", Value: dlist.AtomU32(0)},
		dlist.KV{Key: "highestmodseq", Value: dlist.AtomU64(0)},
		dlist.KV{Key: "recentuid", Value: dlist.AtomU32(0)},
		dlist.KV{Key: "recenttime", Value: dlist.AtomI64(0)},
		dlist.KV{Key: "last_appenddate", Value: dlist.AtomI64(0)},
		dlist.KV{Key: "pop3_last_login", Value: dlist.AtomI64(0)},
		dlist.KV{Key: "pop3_show_after", Value: dlist.AtomI64(0)},
		dlist.KV{Key: "uidvalidity", Value: dlist.AtomU32(1)},
		dlist.KV{Key: "partition", Value: dlist.Atom("default")},
		dlist.KV{Key: "acl", Value: dlist.Atom("")},
		dlist.KV{Key: "options", Value: dlist.Atom("")},
		dlist.KV{Key: "sync_crc", Value: dlist.AtomU32(0)},
		dlist.KV{Key: "sync_crc_annot", Value: dlist.AtomU32(0)},
		dlist.KV{Key: "quotaroot", Value: dlist.Atom("")},
		dlist.KV{Key: "xconvmodseq", Value: dlist.AtomU64(0)},
	)
}

func messagePayload(guid, partition, content string) *dlist.Node {
	return dlist.NewList(dlist.NewKV(
		dlist.KV{Key: "guid", Value: dlist.Atom(guid)},
		dlist.KV{Key: "partition", Value: dlist.Atom(partition)},
		dlist.KV{Key: "payload", Value: dlist.Atom(content)},
	))
}
