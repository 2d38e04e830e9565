package index

import (
	"database/sql"
	"errors"
	"fmt"
)

// InsertMessageIfNew inserts a message row for guid if it is not already
// known; a known guid is an idempotent no-op. Returns the
// message id (existing or newly inserted) and whether it was newly
// inserted.
func (s *Store) InsertMessageIfNew(guid, partition string, chunkID, offset, length int64) (id int64, inserted bool, err error) {
	existing, err := s.GetMessageIDByGUID(guid)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	_, err = s.exec(
		`INSERT INTO message (guid, partition, chunk_id, offset, length) VALUES (?, ?, ?, ?, ?)`,
		guid, partition, chunkID, offset, length,
	)
	if err != nil {
		return 0, false, fmt.Errorf("index: insert message %s: %w", guid, err)
	}
	return s.LastInsertID(), true, nil
}

// GetMessageIDByGUID returns the id of the message with the given guid.
func (s *Store) GetMessageIDByGUID(guid string) (int64, error) {
	var id int64
	err := s.conn().QueryRow(`SELECT id FROM message WHERE guid = ?`, guid).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetMessageByGUID returns the full message row for guid.
func (s *Store) GetMessageByGUID(guid string) (Message, error) {
	row := s.conn().QueryRow(
		`SELECT id, guid, partition, chunk_id, offset, length FROM message WHERE guid = ?`, guid,
	)
	return scanMessage(row)
}

// MessageForeach visits every message, optionally restricted to one chunk
// (chunkID == 0 means all chunks), in insertion order. Visiting stops and
// returns the callback's return value the first time it is non-nil.
func (s *Store) MessageForeach(chunkID int64, cb func(Message) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	if chunkID == 0 {
		rows, err = s.conn().Query(`SELECT id, guid, partition, chunk_id, offset, length FROM message ORDER BY id`)
	} else {
		rows, err = s.conn().Query(
			`SELECT id, guid, partition, chunk_id, offset, length FROM message WHERE chunk_id = ? ORDER BY id`,
			chunkID,
		)
	}
	if err != nil {
		return fmt.Errorf("index: message foreach: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return err
		}
		if err := cb(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.GUID, &m.Partition, &m.ChunkID, &m.Offset, &m.Length); err != nil {
		return Message{}, err
	}
	return m, nil
}
