package backup

import (
	"github.com/cyrusbackup/backup/dlist"
	"github.com/cyrusbackup/backup/index"
)

// GetMailboxID returns the row id of the mailbox with the given uniqueid
//.
func (s *Session) GetMailboxID(uniqueID string) (int64, error) {
	id, err := s.idx.GetMailboxID(uniqueID)
	if err != nil {
		return 0, wrapReadErr("get_mailbox_id", err)
	}
	return id, nil
}

// GetMailboxByName returns a mailbox by name, optionally loading its
// mailbox-message records.
func (s *Session) GetMailboxByName(mboxname string, wantRecords bool) (index.Mailbox, error) {
	mbox, err := s.idx.GetMailboxByName(mboxname, wantRecords)
	if err != nil {
		return index.Mailbox{}, wrapReadErr("get_mailbox_by_name", err)
	}
	return mbox, nil
}

// MailboxForeach visits every mailbox, optionally restricted to those last
// touched by one chunk (chunkID == 0 means all chunks), in insertion
// order. The callback's error, if non-nil, both stops the traversal and is
// returned to the caller.
func (s *Session) MailboxForeach(chunkID int64, wantRecords bool, cb func(index.Mailbox) error) error {
	if err := s.idx.MailboxForeach(chunkID, wantRecords, cb); err != nil {
		return wrapReadErr("mailbox_foreach", err)
	}
	return nil
}

// GetMessageID returns the row id of the message with the given guid
//.
func (s *Session) GetMessageID(guid string) (int64, error) {
	id, err := s.idx.GetMessageIDByGUID(guid)
	if err != nil {
		return 0, wrapReadErr("get_message_id", err)
	}
	return id, nil
}

// GetMessage returns the full message row for guid.
func (s *Session) GetMessage(guid string) (index.Message, error) {
	m, err := s.idx.GetMessageByGUID(guid)
	if err != nil {
		return index.Message{}, wrapReadErr("get_message", err)
	}
	return m, nil
}

// MessageForeach visits every message, optionally restricted to one chunk
// (chunkID == 0 means all chunks), in insertion order.
func (s *Session) MessageForeach(chunkID int64, cb func(index.Message) error) error {
	if err := s.idx.MessageForeach(chunkID, cb); err != nil {
		return wrapReadErr("message_foreach", err)
	}
	return nil
}

// GetMailboxMessages returns mailbox-message rows, optionally restricted
// to one chunk (chunkID == 0 means all chunks).
func (s *Session) GetMailboxMessages(chunkID int64) ([]index.MailboxMessage, error) {
	recs, err := s.idx.GetAllMailboxMessages(chunkID)
	if err != nil {
		return nil, wrapReadErr("get_mailbox_messages", err)
	}
	return recs, nil
}

// GetChunks returns every chunk in insertion order.
func (s *Session) GetChunks() ([]index.Chunk, error) {
	chunks, err := s.idx.GetChunks()
	if err != nil {
		return nil, wrapReadErr("get_chunks", err)
	}
	return chunks, nil
}

// GetLatestChunk returns the highest-id chunk.
func (s *Session) GetLatestChunk() (index.Chunk, error) {
	c, err := s.idx.GetLatestChunk()
	if err != nil {
		return index.Chunk{}, wrapReadErr("get_latest_chunk", err)
	}
	return c, nil
}

// MailboxToDlist rebuilds a replication kvlist from an index mailbox row,
// the form a restore tool replays back through Append.
func MailboxToDlist(m index.Mailbox) (*dlist.Node, error) {
	annotations, err := parseStoredNode(m.Annotations)
	if err != nil {
		return nil, newErr(KindDataErr, "mailbox_to_dlist", err)
	}

	pairs := []dlist.KV{
		{Key: "uniqueid", Value: dlist.Atom(m.UniqueID)},
		{Key: "mboxname", Value: dlist.Atom(m.MboxName)},
		{Key: "mboxtype", Value: dlist.Atom(m.MboxType)},
		{Key: "last_uid", Value: dlist.AtomU32(m.LastUID)},
		{Key: "highestmodseq", Value: dlist.AtomU64(m.HighestModseq)},
		{Key: "recentuid", Value: dlist.AtomU32(m.RecentUID)},
		{Key: "recenttime", Value: dlist.AtomI64(m.RecentTime)},
		{Key: "last_appenddate", Value: dlist.AtomI64(m.LastAppendDate)},
		{Key: "pop3_last_login", Value: dlist.AtomI64(m.Pop3LastLogin)},
		{Key: "pop3_show_after", Value: dlist.AtomI64(m.Pop3ShowAfter)},
		{Key: "uidvalidity", Value: dlist.AtomU32(m.UIDValidity)},
		{Key: "partition", Value: dlist.Atom(m.Partition)},
		{Key: "acl", Value: dlist.Atom(m.ACL)},
		{Key: "options", Value: dlist.Atom(m.Options)},
		{Key: "sync_crc", Value: dlist.AtomU32(m.SyncCRC)},
		{Key: "sync_crc_annot", Value: dlist.AtomU32(m.SyncCRCAnnot)},
		{Key: "quotaroot", Value: dlist.Atom(m.QuotaRoot)},
		{Key: "xconvmodseq", Value: dlist.AtomU64(m.XconvModseq)},
		{Key: "annotations", Value: annotations},
	}
	if len(m.Records) > 0 {
		items := make([]*dlist.Node, 0, len(m.Records))
		for _, r := range m.Records {
			rec, err := recordToDlist(r)
			if err != nil {
				return nil, newErr(KindDataErr, "mailbox_to_dlist", err)
			}
			items = append(items, rec)
		}
		pairs = append(pairs, dlist.KV{Key: "records", Value: dlist.NewList(items...)})
	}
	return dlist.NewKV(pairs...), nil
}

func recordToDlist(r index.MailboxMessage) (*dlist.Node, error) {
	flags, err := parseStoredNode(r.Flags)
	if err != nil {
		return nil, err
	}
	annotations, err := parseStoredNode(r.Annotations)
	if err != nil {
		return nil, err
	}
	return dlist.NewKV(
		dlist.KV{Key: "uid", Value: dlist.AtomU32(r.UID)},
		dlist.KV{Key: "modseq", Value: dlist.AtomU64(r.Modseq)},
		dlist.KV{Key: "last_updated", Value: dlist.AtomI64(r.LastUpdated)},
		dlist.KV{Key: "flags", Value: flags},
		dlist.KV{Key: "internaldate", Value: dlist.AtomI64(r.InternalDate)},
		dlist.KV{Key: "guid", Value: dlist.Atom(r.GUID)},
		dlist.KV{Key: "size", Value: dlist.AtomU32(r.Size)},
		dlist.KV{Key: "annotations", Value: annotations},
	), nil
}

// parseStoredNode re-parses a field stored by SerializeNode, treating an
// empty or "NIL" value as no node at all.
func parseStoredNode(s string) (*dlist.Node, error) {
	if s == "" || s == "NIL" {
		return nil, nil
	}
	return dlist.ParseNode(s)
}

// wrapReadErr wraps a query failure as Internal; callers that care about a plain
// miss can still unwrap and compare against sql.ErrNoRows.
func wrapReadErr(op string, err error) error {
	return newErr(KindInternal, op, err)
}
