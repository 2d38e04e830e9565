package index

import (
	"database/sql"
	"fmt"
)

const mailboxMessageColumns = `id, mailbox_id, mailbox_uniqueid, message_id, last_chunk_id, uid, modseq,
	last_updated, flags, internaldate, guid, size, annotations, expunged`

// UpsertMailboxMessage inserts or updates a mailbox-message row keyed by
// (mailbox_id, uid).
func (s *Store) UpsertMailboxMessage(r MailboxMessage) error {
	var messageID sql.NullInt64
	if r.MessageID != nil {
		messageID = sql.NullInt64{Int64: *r.MessageID, Valid: true}
	}
	_, err := s.exec(`
		INSERT INTO mailbox_message (
			mailbox_id, mailbox_uniqueid, message_id, last_chunk_id, uid, modseq,
			last_updated, flags, internaldate, guid, size, annotations, expunged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mailbox_id, uid) DO UPDATE SET
			mailbox_uniqueid = excluded.mailbox_uniqueid,
			message_id = excluded.message_id,
			last_chunk_id = excluded.last_chunk_id,
			modseq = excluded.modseq,
			last_updated = excluded.last_updated,
			flags = excluded.flags,
			internaldate = excluded.internaldate,
			guid = excluded.guid,
			size = excluded.size,
			annotations = excluded.annotations,
			expunged = excluded.expunged
		`,
		r.MailboxID, r.MailboxUniqueID, messageID, r.LastChunkID, r.UID, r.Modseq,
		r.LastUpdated, r.Flags, r.InternalDate, r.GUID, r.Size, r.Annotations, r.Expunged,
	)
	if err != nil {
		return fmt.Errorf("index: upsert mailbox_message mailbox=%d uid=%d: %w", r.MailboxID, r.UID, err)
	}
	return nil
}

// ExpungeMailboxMessage marks a mailbox-message expunged in place.
func (s *Store) ExpungeMailboxMessage(mailboxID int64, uid uint32, chunkID int64) error {
	_, err := s.exec(
		`UPDATE mailbox_message SET expunged = 1, last_chunk_id = ? WHERE mailbox_id = ? AND uid = ?`,
		chunkID, mailboxID, uid,
	)
	if err != nil {
		return fmt.Errorf("index: expunge mailbox=%d uid=%d: %w", mailboxID, uid, err)
	}
	return nil
}

// GetMailboxMessages returns every mailbox-message row for a mailbox, in
// insertion (id) order.
func (s *Store) GetMailboxMessages(mailboxID int64) ([]MailboxMessage, error) {
	rows, err := s.conn().Query(
		`SELECT `+mailboxMessageColumns+` FROM mailbox_message WHERE mailbox_id = ? ORDER BY id`,
		mailboxID,
	)
	if err != nil {
		return nil, fmt.Errorf("index: get mailbox_messages for %d: %w", mailboxID, err)
	}
	defer rows.Close()
	var out []MailboxMessage
	for rows.Next() {
		r, err := scanMailboxMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetAllMailboxMessages returns mailbox-message rows, optionally
// restricted to one chunk (chunkID == 0 means all chunks).
func (s *Store) GetAllMailboxMessages(chunkID int64) ([]MailboxMessage, error) {
	query := `SELECT ` + mailboxMessageColumns + ` FROM mailbox_message`
	var args []any
	if chunkID != 0 {
		query += ` WHERE last_chunk_id = ?`
		args = append(args, chunkID)
	}
	query += ` ORDER BY id`
	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: get all mailbox_messages: %w", err)
	}
	defer rows.Close()
	var out []MailboxMessage
	for rows.Next() {
		r, err := scanMailboxMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanMailboxMessage(row rowScanner) (MailboxMessage, error) {
	var r MailboxMessage
	var messageID sql.NullInt64
	var expunged int
	err := row.Scan(
		&r.ID, &r.MailboxID, &r.MailboxUniqueID, &messageID, &r.LastChunkID, &r.UID, &r.Modseq,
		&r.LastUpdated, &r.Flags, &r.InternalDate, &r.GUID, &r.Size, &r.Annotations, &expunged,
	)
	if err != nil {
		return MailboxMessage{}, err
	}
	if messageID.Valid {
		r.MessageID = &messageID.Int64
	}
	r.Expunged = expunged != 0
	return r, nil
}
