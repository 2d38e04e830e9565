package backup

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cyrusbackup/backup/dlist"
	"github.com/cyrusbackup/backup/index"
)

// indexMailbox applies a MAILBOX command: upsert the mailbox row keyed by
// uniqueid, mirroring the listed metadata, then upsert any RECORD entries
// as mailbox-message rows.
func (s *Session) indexMailbox(payload *dlist.Node, chunkID int64) error {
	uniqueID := payload.Get("uniqueid").String()
	if uniqueID == "" {
		return newErr(KindDataErr, "append", errors.New("MAILBOX missing uniqueid"))
	}

	lastUID, err := fieldU32(payload, "last_uid")
	if err != nil {
		return err
	}
	highestModseq, err := fieldU64(payload, "highestmodseq")
	if err != nil {
		return err
	}
	recentUID, err := fieldU32(payload, "recentuid")
	if err != nil {
		return err
	}
	recentTime, err := fieldI64(payload, "recenttime")
	if err != nil {
		return err
	}
	lastAppendDate, err := fieldI64(payload, "last_appenddate")
	if err != nil {
		return err
	}
	pop3LastLogin, err := fieldI64(payload, "pop3_last_login")
	if err != nil {
		return err
	}
	pop3ShowAfter, err := fieldI64(payload, "pop3_show_after")
	if err != nil {
		return err
	}
	uidValidity, err := fieldU32(payload, "uidvalidity")
	if err != nil {
		return err
	}
	syncCRC, err := fieldU32(payload, "sync_crc")
	if err != nil {
		return err
	}
	syncCRCAnnot, err := fieldU32(payload, "sync_crc_annot")
	if err != nil {
		return err
	}
	xconvModseq, err := fieldU64(payload, "xconvmodseq")
	if err != nil {
		return err
	}

	mbox := index.Mailbox{
		LastChunkID: chunkID,
		UniqueID: uniqueID,
		MboxName: payload.Get("mboxname").String(),
		MboxType: payload.Get("mboxtype").String(),
		LastUID: lastUID,
		HighestModseq: highestModseq,
		RecentUID: recentUID,
		RecentTime: recentTime,
		LastAppendDate: lastAppendDate,
		Pop3LastLogin: pop3LastLogin,
		Pop3ShowAfter: pop3ShowAfter,
		UIDValidity: uidValidity,
		Partition: payload.Get("partition").String(),
		ACL: payload.Get("acl").String(),
		Options: payload.Get("options").String(),
		SyncCRC: syncCRC,
		SyncCRCAnnot: syncCRCAnnot,
		QuotaRoot: payload.Get("quotaroot").String(),
		XconvModseq: xconvModseq,
		Annotations: string(dlist.SerializeNode(payload.Get("annotations"))),
	}
	mailboxID, err := s.idx.UpsertMailbox(mbox)
	if err != nil {
		return newErr(KindInternal, "append", err)
	}

	records := payload.Get("records")
	if records == nil {
		return nil
	}
	for _, rec := range records.Items {
		if err := s.indexMailboxRecord(rec, mailboxID, uniqueID, chunkID); err != nil {
			return err
		}
	}
	return nil
}

// indexMailboxRecord upserts one RECORD entry of a MAILBOX command as a
// mailbox-message row keyed by (mailbox_id, uid).
func (s *Session) indexMailboxRecord(rec *dlist.Node, mailboxID int64, mailboxUniqueID string, chunkID int64) error {
	uid, err := fieldU32(rec, "uid")
	if err != nil {
		return err
	}
	modseq, err := fieldU64(rec, "modseq")
	if err != nil {
		return err
	}
	lastUpdated, err := fieldI64(rec, "last_updated")
	if err != nil {
		return err
	}
	internalDate, err := fieldI64(rec, "internaldate")
	if err != nil {
		return err
	}
	size, err := fieldU32(rec, "size")
	if err != nil {
		return err
	}

	flags := rec.Get("flags")
	expunged := false
	if flags != nil {
		for _, f := range flags.Items {
			if f.String() == `\Expunged` {
				expunged = true
			}
		}
	}

	row := index.MailboxMessage{
		MailboxID: mailboxID,
		MailboxUniqueID: mailboxUniqueID,
		LastChunkID: chunkID,
		UID: uid,
		Modseq: modseq,
		LastUpdated: lastUpdated,
		Flags: string(dlist.SerializeNode(flags)),
		InternalDate: internalDate,
		GUID: rec.Get("guid").String(),
		Size: size,
		Annotations: string(dlist.SerializeNode(rec.Get("annotations"))),
		Expunged: expunged,
	}
	if row.GUID != "" {
		msgID, err := s.idx.GetMessageIDByGUID(row.GUID)
		if err == nil {
			row.MessageID = &msgID
		}
	}
	if err := s.idx.UpsertMailboxMessage(row); err != nil {
		return newErr(KindInternal, "append", err)
	}
	return nil
}

// indexMessages applies a MESSAGE command: a list of (guid, partition,
// payload) triples, each inserted as a new message row if the guid is not
// already known.
// lineOffset/line locate each triple's raw payload bytes within the
// chunk's decompressed stream.
func (s *Session) indexMessages(payload *dlist.Node, chunkID, lineOffset int64, line []byte) error {
	items := payload.Items
	if payload.Kind != dlist.KindList {
		items = []*dlist.Node{payload}
	}
	for _, item := range items {
		guid := item.Get("guid").String()
		partition := item.Get("partition").String()
		data := item.Get("payload")
		if guid == "" || data == nil {
			return newErr(KindDataErr, "append", errors.New("MESSAGE entry missing guid or payload"))
		}
		if _, err := dlist.ParseGUID(guid); err != nil {
			return newErr(KindDataErr, "append", fmt.Errorf("MESSAGE guid: %w", err))
		}

		raw := []byte(data.String())
		rel := bytes.Index(line, raw)
		if rel < 0 {
			return newErr(KindInternal, "append", fmt.Errorf("could not locate payload bytes for message %s in its own command line", guid))
		}

		_, _, err := s.idx.InsertMessageIfNew(guid, partition, chunkID, lineOffset+int64(rel), int64(len(raw)))
		if err != nil {
			return newErr(KindInternal, "append", err)
		}
	}
	return nil
}

// indexExpunge applies an EXPUNGE command: mark a mailbox-message expunged
// in place.
func (s *Session) indexExpunge(payload *dlist.Node, chunkID int64) error {
	uniqueID := payload.Get("uniqueid").String()
	if uniqueID == "" {
		return newErr(KindDataErr, "append", errors.New("EXPUNGE missing uniqueid"))
	}
	uid, err := fieldU32(payload, "uid")
	if err != nil {
		return err
	}
	mailboxID, err := s.idx.GetMailboxID(uniqueID)
	if err != nil {
		return newErr(KindDataErr, "append", fmt.Errorf("EXPUNGE unknown mailbox %s: %w", uniqueID, err))
	}
	if err := s.idx.ExpungeMailboxMessage(mailboxID, uid, chunkID); err != nil {
		return newErr(KindInternal, "append", err)
	}
	return nil
}

// fieldU32/fieldU64/fieldI64 read a fixed-width numeric field, treating an
// absent field as zero and a present-but-unparseable one as a data error.
func fieldU32(n *dlist.Node, key string) (uint32, error) {
	v := n.Get(key)
	if v == nil {
		return 0, nil
	}
	val, err := v.Uint32()
	if err != nil {
		return 0, newErr(KindDataErr, "append", fmt.Errorf("field %s: %w", key, err))
	}
	return val, nil
}

func fieldU64(n *dlist.Node, key string) (uint64, error) {
	v := n.Get(key)
	if v == nil {
		return 0, nil
	}
	val, err := v.Uint64()
	if err != nil {
		return 0, newErr(KindDataErr, "append", fmt.Errorf("field %s: %w", key, err))
	}
	return val, nil
}

func fieldI64(n *dlist.Node, key string) (int64, error) {
	v := n.Get(key)
	if v == nil {
		return 0, nil
	}
	val, err := v.Int64()
	if err != nil {
		return 0, newErr(KindDataErr, "append", fmt.Errorf("field %s: %w", key, err))
	}
	return val, nil
}
