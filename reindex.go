package backup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cyrusbackup/backup/dlist"
	"github.com/cyrusbackup/backup/gzuncat"
)

// Reindex rebuilds the index of the data file at dataPath from scratch by
// replaying its gzip members. The previous index, if any, is
// restored if reindexing fails.
func Reindex(dataPath, indexPath string) error {
	s, err := OpenReindex(dataPath, indexPath)
	if err != nil {
		return err
	}
	if err := s.runReindex(); err != nil {
		s.FailReindex()
		_ = s.Close()
		return err
	}
	return s.Close()
}

// runReindex scans gzip members sequentially, re-deriving one chunk (and
// its mailbox/message/mailbox-message rows) per member.
func (s *Session) runReindex() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return newErr(KindIO, "reindex", err)
	}
	r := gzuncat.Open(s.f)

	var prevTsStart int64
	firstChunk := true

	for !r.EOF() {
		if err := r.MemberStart(); err != nil {
			return newErr(KindCorrupt, "reindex", err)
		}
		memberOffset := r.Offset()
		br := bufio.NewReader(readAdapter{r})

		headerRaw, err := dlist.ReadRawRecord(br)
		if err != nil {
			return newErr(KindDataErr, "reindex", fmt.Errorf("reading chunk header at offset %d: %w", memberOffset, err))
		}
		headerTs, err := parseChunkHeader(headerRaw)
		if err != nil {
			return newErr(KindDataErr, "reindex", err)
		}
		if !firstChunk && headerTs < prevTsStart {
			return newErr(KindDataErr, "reindex", fmt.Errorf("chunk at offset %d starts at ts %d before previous chunk's %d", memberOffset, headerTs, prevTsStart))
		}

		fileSHA1, err := sha1Prefix(s.f, memberOffset)
		if err != nil {
			return newErr(KindIO, "reindex", err)
		}
		if err := s.startAppend(headerTs, memberOffset, fileSHA1, true); err != nil {
			return err
		}
		prevTsStart = headerTs
		firstChunk = false

		if err := s.replayMember(br, memberOffset); err != nil {
			_ = s.AbortAppend()
			return err
		}

		if err := r.MemberEnd(); err != nil {
			_ = s.AbortAppend()
			return newErr(KindCorrupt, "reindex", err)
		}
		if err := s.endAppend(); err != nil {
			return err
		}
	}
	return nil
}

// replayMember reads and indexes every record of one chunk after its
// header line.
func (s *Session) replayMember(br *bufio.Reader, memberOffset int64) error {
	for {
		raw, err := dlist.ReadRawRecord(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return newErr(KindDataErr, "reindex", fmt.Errorf("reading record in chunk at offset %d: %w", memberOffset, err))
		}
		if bytes.HasPrefix(raw, []byte("#")) {
			if err := s.append.writeLine(raw); err != nil {
				return err
			}
			continue
		}

		ts, verb, kv, err := dlist.ParseRecordLine(raw)
		if err != nil {
			return newErr(KindDataErr, "reindex", fmt.Errorf("parsing record in chunk at offset %d: %w", memberOffset, err))
		}
		if verb != "APPLY" {
			if err := s.append.writeLine(raw); err != nil {
				return err
			}
			continue
		}
		innerVerb, payload, err := unwrapApply(kv)
		if err != nil {
			return newErr(KindDataErr, "reindex", fmt.Errorf("chunk at offset %d: %w", memberOffset, err))
		}
		if err := s.replayCommand(strings.ToUpper(innerVerb), payload, ts, raw); err != nil {
			return err
		}
	}
}

// unwrapApply extracts the inner replication verb and payload from an
// APPLY command's kvlist, which is always a single-key KV node: "%(MAILBOX
// %(...))".
func unwrapApply(kv *dlist.Node) (string, *dlist.Node, error) {
	if kv == nil || kv.Kind != dlist.KindKV || len(kv.Pairs) != 1 {
		return "", nil, errors.New("malformed APPLY payload")
	}
	return kv.Pairs[0].Key, kv.Pairs[0].Value, nil
}

// parseChunkHeader extracts the timestamp from a chunk's header comment
// line, "# cyrus backup: chunk start <unix-ts>\r\n".
func parseChunkHeader(raw []byte) (int64, error) {
	s := strings.TrimSuffix(strings.TrimSuffix(string(raw), "\n"), "\r")
	const prefix = "# cyrus backup: chunk start "
	if !strings.HasPrefix(s, prefix) {
		return 0, fmt.Errorf("missing chunk header, got %q", s)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(s[len(prefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chunk header: %w", err)
	}
	return ts, nil
}
