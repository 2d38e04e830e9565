package index

import (
	"database/sql"
	"fmt"
)

// InsertChunk inserts a new chunk row with NULL terminal fields and returns its assigned id.
func (s *Store) InsertChunk(tsStart, offset int64, fileSHA1 string) (int64, error) {
	_, err := s.exec(
		`INSERT INTO chunk (ts_start, offset, file_sha1) VALUES (?, ?, ?)`,
		tsStart, offset, fileSHA1,
	)
	if err != nil {
		return 0, fmt.Errorf("index: insert chunk: %w", err)
	}
	return s.LastInsertID(), nil
}

// FinalizeChunk sets the terminal fields of a chunk on append-end.
func (s *Store) FinalizeChunk(id int64, tsEnd, length int64, dataSHA1 string) error {
	_, err := s.exec(
		`UPDATE chunk SET ts_end = ?, length = ?, data_sha1 = ? WHERE id = ?`,
		tsEnd, length, dataSHA1, id,
	)
	if err != nil {
		return fmt.Errorf("index: finalize chunk %d: %w", id, err)
	}
	return nil
}

// GetChunks returns all chunks in insertion (id) order.
func (s *Store) GetChunks() ([]Chunk, error) {
	rows, err := s.conn().Query(
		`SELECT id, ts_start, ts_end, offset, length, file_sha1, data_sha1 FROM chunk ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("index: get chunks: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetLatestChunk returns the highest-id chunk, or (Chunk{}, sql.ErrNoRows)
// if the index has no chunks yet.
func (s *Store) GetLatestChunk() (Chunk, error) {
	row := s.conn().QueryRow(
		`SELECT id, ts_start, ts_end, offset, length, file_sha1, data_sha1 FROM chunk ORDER BY id DESC LIMIT 1`,
	)
	return scanChunk(row)
}

type rowScanner interface {
	Scan(dest...any) error
}

func scanChunk(row rowScanner) (Chunk, error) {
	var c Chunk
	var tsEnd, length sql.NullInt64
	var dataSHA1 sql.NullString
	if err := row.Scan(&c.ID, &c.TsStart, &tsEnd, &c.Offset, &length, &c.FileSHA1, &dataSHA1); err != nil {
		return Chunk{}, err
	}
	if tsEnd.Valid {
		c.TsEnd = &tsEnd.Int64
	}
	if length.Valid {
		c.Length = &length.Int64
	}
	if dataSHA1.Valid {
		c.DataSHA1 = &dataSHA1.String
	}
	return c, nil
}
