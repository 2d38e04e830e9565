package backup

import (
	"crypto/sha1" //nolint:gosec // wire-mandated checksum
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/cyrusbackup/backup/dlist"
	"github.com/klauspost/compress/gzip"
)

const appendTxnName = "backup_index"

// appendState is the per-session state of the single active append, if
// any.
type appendState struct {
	chunkID int64
	tsStart int64 // chunk header timestamp
	lastTs int64 // highest command timestamp seen, for monotonicity
	wrote int64 // decompressed bytes written so far, header included
	hash hash.Hash
	gz *gzip.Writer // nil in index-only (reindex) mode
	indexOnly bool
}

// StartAppend opens a new chunk at the session's current end of file
//. Calling it while a chunk is already open is a
// programmer error and is fatal.
func (s *Session) StartAppend() error {
	if s.append != nil {
		fatalf("backup: start called with an append already open")
		return newErr(KindInternal, "start", errors.New("append already open"))
	}
	offset, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return newErr(KindIO, "start", fmt.Errorf("seek to eof: %w", err))
	}
	fileSHA1, err := sha1Prefix(s.f, offset)
	if err != nil {
		return newErr(KindIO, "start", err)
	}
	return s.startAppend(time.Now().Unix(), offset, fileSHA1, false)
}

// startAppend is the shared implementation behind StartAppend and the
// reindex engine's index-only replay.
func (s *Session) startAppend(tsStart, offset int64, fileSHA1 string, indexOnly bool) error {
	if s.append != nil {
		fatalf("backup: start called with an append already open")
		return newErr(KindInternal, "start", errors.New("append already open"))
	}

	st := &appendState{tsStart: tsStart, hash: sha1.New(), indexOnly: indexOnly} //nolint:gosec

	if !indexOnly {
		if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
			return newErr(KindIO, "start", fmt.Errorf("seek to chunk start: %w", err))
		}
		st.gz = gzip.NewWriter(s.f)
	}

	header := []byte(fmt.Sprintf("# cyrus backup: chunk start %d\r\n", tsStart))
	if err := st.writeLine(header); err != nil {
		return err
	}

	if err := s.idx.Begin(appendTxnName); err != nil {
		if !indexOnly {
			_ = st.gz.Close()
		}
		return newErr(KindInternal, "start", err)
	}
	chunkID, err := s.idx.InsertChunk(tsStart, offset, fileSHA1)
	if err != nil {
		_ = s.idx.Rollback(appendTxnName)
		if !indexOnly {
			_ = st.gz.Close()
		}
		return newErr(KindInternal, "start", err)
	}
	st.chunkID = chunkID
	s.append = st
	return nil
}

// Append builds and writes one command line for verb/payload at the given
// timestamp. The outer wire verb is always APPLY; verb here is the inner
// replication verb that gets indexed (MAILBOX, MESSAGE, UNMAILBOX, EXPUNGE,
// RENAME, or any other verb, which is written but left unindexed).
func (s *Session) Append(verb string, payload *dlist.Node, ts int64) error {
	if s.append == nil {
		return newErr(KindInternal, "append", errors.New("no append is open"))
	}
	st := s.append
	if ts < st.lastTs {
		return newErr(KindDataErr, "append", fmt.Errorf("command timestamp %d precedes %d", ts, st.lastTs))
	}
	st.lastTs = ts

	kv := dlist.NewKV(dlist.KV{Key: verb, Value: payload})
	line := dlist.Serialize(ts, "APPLY", kv)
	lineOffset := st.wrote

	if err := st.writeLine(line); err != nil {
		return err
	}

	return s.indexCommand(verb, payload, ts, lineOffset, line)
}

// replayCommand is the reindex engine's counterpart to Append: it indexes
// a command using the exact raw bytes already read back from the gzip
// member, instead of re-serializing the parsed kvlist, so an index-only
// replay's running hash stays byte-identical to what is actually on disk.
func (s *Session) replayCommand(verb string, payload *dlist.Node, ts int64, raw []byte) error {
	if s.append == nil {
		return newErr(KindInternal, "reindex", errors.New("no append is open"))
	}
	st := s.append
	if ts < st.lastTs {
		return newErr(KindDataErr, "reindex", fmt.Errorf("command timestamp %d precedes %d", ts, st.lastTs))
	}
	st.lastTs = ts
	lineOffset := st.wrote

	if err := st.writeLine(raw); err != nil {
		return err
	}
	return s.indexCommand(verb, payload, ts, lineOffset, raw)
}

// writeLine updates the running hash and, unless index-only, writes the
// bytes to the gzip stream and flushes so a crash after this call loses no
// earlier commands.
func (a *appendState) writeLine(line []byte) error {
	a.hash.Write(line)
	a.wrote += int64(len(line))
	if a.indexOnly {
		return nil
	}
	for written := 0; written < len(line); {
		n, err := a.gz.Write(line[written:])
		if err != nil {
			return newErr(KindIO, "append", fmt.Errorf("write chunk data: %w", err))
		}
		written += n
	}
	if err := a.gz.Flush(); err != nil {
		return newErr(KindIO, "append", fmt.Errorf("flush chunk data: %w", err))
	}
	return nil
}

// EndAppend finalizes the currently open chunk.
func (s *Session) EndAppend() error {
	if s.append == nil {
		return newErr(KindInternal, "end", errors.New("no append is open"))
	}
	return s.endAppend()
}

func (s *Session) endAppend() error {
	st := s.append
	if !st.indexOnly {
		if err := st.gz.Close(); err != nil {
			s.append = nil
			_ = s.idx.Rollback(appendTxnName)
			return newErr(KindIO, "end", fmt.Errorf("close chunk writer: %w", err))
		}
	}
	dataSHA1 := hex.EncodeToString(st.hash.Sum(nil))
	if err := s.idx.FinalizeChunk(st.chunkID, max(st.tsStart, st.lastTs), st.wrote, dataSHA1); err != nil {
		s.append = nil
		_ = s.idx.Rollback(appendTxnName)
		return newErr(KindInternal, "end", err)
	}
	if err := s.idx.Commit(appendTxnName); err != nil {
		s.append = nil
		_ = s.idx.Rollback(appendTxnName)
		return newErr(KindInternal, "end", fmt.Errorf("commit index: %w", err))
	}
	s.append = nil
	return nil
}

// AbortAppend rolls back the open chunk's index transaction. The gzip
// bytes already on disk remain as a dangling trailing member; the next
// open fails (ReindexRequired if no earlier chunk is indexed, Corrupt
// otherwise) until reindex is run.
func (s *Session) AbortAppend() error {
	if s.append == nil {
		return newErr(KindInternal, "abort", errors.New("no append is open"))
	}
	st := s.append
	s.append = nil
	if !st.indexOnly {
		_ = st.gz.Close()
	}
	if err := s.idx.Rollback(appendTxnName); err != nil {
		return newErr(KindInternal, "abort", err)
	}
	return nil
}

// indexCommand applies the per-command indexing policy: each replication
// verb updates the chunks/mailboxes/messages tables in the same
// transaction as the data-log write that produced it.
// lineOffset is the command line's starting byte offset within the
// chunk's decompressed stream; line is its serialized bytes, used to
// locate the raw byte ranges of embedded message payloads.
func (s *Session) indexCommand(verb string, payload *dlist.Node, ts, lineOffset int64, line []byte) error {
	chunkID := s.append.chunkID
	switch verb {
	case "MAILBOX":
		return s.indexMailbox(payload, chunkID)
	case "MESSAGE":
		return s.indexMessages(payload, chunkID, lineOffset, line)
	case "UNMAILBOX":
		uniqueID := payload.Get("uniqueid").String()
		if uniqueID == "" {
			return newErr(KindDataErr, "append", errors.New("UNMAILBOX missing uniqueid"))
		}
		if err := s.idx.MarkMailboxDeleted(uniqueID, chunkID, ts); err != nil {
			return newErr(KindInternal, "append", err)
		}
		return nil
	case "RENAME":
		uniqueID := payload.Get("uniqueid").String()
		newName := payload.Get("mboxname").String()
		if uniqueID == "" || newName == "" {
			return newErr(KindDataErr, "append", errors.New("RENAME missing uniqueid or mboxname"))
		}
		if err := s.idx.RenameMailbox(uniqueID, newName, chunkID); err != nil {
			return newErr(KindInternal, "append", err)
		}
		return nil
	case "EXPUNGE":
		return s.indexExpunge(payload, chunkID)
	default:
		return nil
	}
}
