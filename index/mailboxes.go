package index

import (
	"database/sql"
	"fmt"
)

const mailboxColumns = `id, last_chunk_id, uniqueid, mboxname, mboxtype, last_uid, highestmodseq,
	recentuid, recenttime, last_appenddate, pop3_last_login, pop3_show_after,
	uidvalidity, partition, acl, options, sync_crc, sync_crc_annot, quotaroot,
	xconvmodseq, annotations, deleted`

// UpsertMailbox inserts or updates a mailbox row keyed by UniqueID. The
// returned id is the mailbox's row id, new or existing.
func (s *Store) UpsertMailbox(m Mailbox) (int64, error) {
	_, err := s.exec(`
		INSERT INTO mailbox (
			last_chunk_id, uniqueid, mboxname, mboxtype, last_uid, highestmodseq,
			recentuid, recenttime, last_appenddate, pop3_last_login, pop3_show_after,
			uidvalidity, partition, acl, options, sync_crc, sync_crc_annot, quotaroot,
			xconvmodseq, annotations, deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uniqueid) DO UPDATE SET
			last_chunk_id = excluded.last_chunk_id,
			mboxname = excluded.mboxname,
			mboxtype = excluded.mboxtype,
			last_uid = excluded.last_uid,
			highestmodseq = excluded.highestmodseq,
			recentuid = excluded.recentuid,
			recenttime = excluded.recenttime,
			last_appenddate = excluded.last_appenddate,
			pop3_last_login = excluded.pop3_last_login,
			pop3_show_after = excluded.pop3_show_after,
			uidvalidity = excluded.uidvalidity,
			partition = excluded.partition,
			acl = excluded.acl,
			options = excluded.options,
			sync_crc = excluded.sync_crc,
			sync_crc_annot = excluded.sync_crc_annot,
			quotaroot = excluded.quotaroot,
			xconvmodseq = excluded.xconvmodseq,
			annotations = excluded.annotations,
			deleted = excluded.deleted
		`,
		m.LastChunkID, m.UniqueID, m.MboxName, m.MboxType, m.LastUID, m.HighestModseq,
		m.RecentUID, m.RecentTime, m.LastAppendDate, m.Pop3LastLogin, m.Pop3ShowAfter,
		m.UIDValidity, m.Partition, m.ACL, m.Options, m.SyncCRC, m.SyncCRCAnnot, m.QuotaRoot,
		m.XconvModseq, m.Annotations, m.Deleted,
	)
	if err != nil {
		return 0, fmt.Errorf("index: upsert mailbox %s: %w", m.UniqueID, err)
	}
	return s.GetMailboxID(m.UniqueID)
}

// MarkMailboxDeleted sets a mailbox's deleted timestamp and last_chunk_id.
func (s *Store) MarkMailboxDeleted(uniqueID string, chunkID, deletedAt int64) error {
	_, err := s.exec(
		`UPDATE mailbox SET deleted = ?, last_chunk_id = ? WHERE uniqueid = ?`,
		deletedAt, chunkID, uniqueID,
	)
	if err != nil {
		return fmt.Errorf("index: mark mailbox %s deleted: %w", uniqueID, err)
	}
	return nil
}

// RenameMailbox updates a mailbox's name in place.
func (s *Store) RenameMailbox(uniqueID, newName string, chunkID int64) error {
	_, err := s.exec(
		`UPDATE mailbox SET mboxname = ?, last_chunk_id = ? WHERE uniqueid = ?`,
		newName, chunkID, uniqueID,
	)
	if err != nil {
		return fmt.Errorf("index: rename mailbox %s: %w", uniqueID, err)
	}
	return nil
}

// GetMailboxID returns the row id for a mailbox uniqueid.
func (s *Store) GetMailboxID(uniqueID string) (int64, error) {
	var id int64
	err := s.conn().QueryRow(`SELECT id FROM mailbox WHERE uniqueid = ?`, uniqueID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetMailboxByName returns a mailbox by mboxname, optionally loading its
// mailbox-message rows. If wantRecords is true and loading the records
// fails, the error is returned rather than a half-populated Mailbox.
func (s *Store) GetMailboxByName(mboxname string, wantRecords bool) (Mailbox, error) {
	row := s.conn().QueryRow(`SELECT `+mailboxColumns+` FROM mailbox WHERE mboxname = ?`, mboxname)
	mbox, err := scanMailbox(row)
	if err != nil {
		return Mailbox{}, err
	}
	if wantRecords {
		recs, err := s.GetMailboxMessages(mbox.ID)
		if err != nil {
			return Mailbox{}, fmt.Errorf("index: load records for mailbox %s: %w", mboxname, err)
		}
		mbox.Records = recs
	}
	return mbox, nil
}

// MailboxForeach visits every mailbox, optionally restricted to those last
// touched by one chunk (chunkID == 0 means all chunks), in insertion
// (id) order.
func (s *Store) MailboxForeach(chunkID int64, wantRecords bool, cb func(Mailbox) error) error {
	var (
		rows *sql.Rows
		err error
	)
	if chunkID == 0 {
		rows, err = s.conn().Query(`SELECT ` + mailboxColumns + ` FROM mailbox ORDER BY id`)
	} else {
		rows, err = s.conn().Query(`SELECT `+mailboxColumns+` FROM mailbox WHERE last_chunk_id = ? ORDER BY id`, chunkID)
	}
	if err != nil {
		return fmt.Errorf("index: mailbox foreach: %w", err)
	}
	defer rows.Close()
	var boxes []Mailbox
	for rows.Next() {
		mbox, err := scanMailbox(rows)
		if err != nil {
			return err
		}
		boxes = append(boxes, mbox)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, mbox := range boxes {
		if wantRecords {
			recs, err := s.GetMailboxMessages(mbox.ID)
			if err != nil {
				return fmt.Errorf("index: load records for mailbox %s: %w", mbox.MboxName, err)
			}
			mbox.Records = recs
		}
		if err := cb(mbox); err != nil {
			return err
		}
	}
	return nil
}

func scanMailbox(row rowScanner) (Mailbox, error) {
	var m Mailbox
	err := row.Scan(
		&m.ID, &m.LastChunkID, &m.UniqueID, &m.MboxName, &m.MboxType, &m.LastUID, &m.HighestModseq,
		&m.RecentUID, &m.RecentTime, &m.LastAppendDate, &m.Pop3LastLogin, &m.Pop3ShowAfter,
		&m.UIDValidity, &m.Partition, &m.ACL, &m.Options, &m.SyncCRC, &m.SyncCRCAnnot, &m.QuotaRoot,
		&m.XconvModseq, &m.Annotations, &m.Deleted,
	)
	if err != nil {
		return Mailbox{}, err
	}
	return m, nil
}
