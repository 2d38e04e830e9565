package backup

import (
	"crypto/sha1" //nolint:gosec // wire-mandated checksum, not used for integrity against an adversary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cyrusbackup/backup/filelock"
	"github.com/cyrusbackup/backup/gzuncat"
	"github.com/cyrusbackup/backup/index"
	"github.com/cyrusbackup/backup/userpath"
)

// Session owns the open {data, index} pair for one user: the locked file
// descriptor, the index store handle, and at most one active append.
type Session struct {
	dataPath, indexPath string

	f *os.File
	lock *filelock.Lock
	idx *index.Store

	append *appendState

	reindexMode bool
	reindexOldPath string
	reindexFailed bool
}

// Open resolves userID to its backup file pair (creating it on first use)
// and opens a session on it.
func Open(cfg Config, userID string) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	res, err := userpath.Open(cfg.resolverConfig())
	if err != nil {
		return nil, newErr(KindIO, "open", err)
	}
	defer res.Close()
	paths, err := res.Resolve(userID)
	if err != nil {
		return nil, newErr(KindIO, "open", err)
	}
	return OpenPaths(paths.Data, paths.Index)
}

// OpenPaths opens a session directly on an explicit {data, index} file
// pair.
func OpenPaths(dataPath, indexPath string) (*Session, error) {
	return openSession(dataPath, indexPath, false)
}

// OpenReindex opens a privileged reindex session: the existing index (if
// any) is renamed aside to "<index>.old" and a fresh index is created in
// its place.
func OpenReindex(dataPath, indexPath string) (*Session, error) {
	return openSession(dataPath, indexPath, true)
}

func openSession(dataPath, indexPath string, reindexMode bool) (*Session, error) {
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o660)
	if err != nil {
		return nil, newErr(KindIO, "open", fmt.Errorf("open data file: %w", err))
	}
	lock, err := filelock.Acquire(f)
	if err != nil {
		_ = f.Close()
		return nil, newErr(KindIO, "open", fmt.Errorf("acquire lock: %w", err))
	}

	s := &Session{dataPath: dataPath, indexPath: indexPath, f: f, lock: lock, reindexMode: reindexMode}

	if reindexMode {
		if err := s.prepareReindexIndex(); err != nil {
			s.teardown()
			return nil, err
		}
	} else if err := s.checkReindexRequired(); err != nil {
		s.teardown()
		return nil, err
	}

	idx, err := index.Open(indexPath)
	if err != nil {
		s.teardown()
		return nil, newErr(KindInternal, "open", err)
	}
	s.idx = idx

	if !reindexMode {
		if err := s.validate(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// checkReindexRequired fails closed when the data file is non-empty but
// the index is missing or empty, rather than silently treating it as fresh.
func (s *Session) checkReindexRequired() error {
	fi, err := s.f.Stat()
	if err != nil {
		return newErr(KindIO, "open", err)
	}
	if fi.Size() == 0 {
		return nil
	}
	ifi, err := os.Stat(s.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return newErr(KindReindexRequired, "open", nil)
	}
	if err != nil {
		return newErr(KindIO, "open", err)
	}
	if ifi.Size() == 0 {
		return newErr(KindReindexRequired, "open", nil)
	}
	idx, err := index.Open(s.indexPath)
	if err != nil {
		return newErr(KindInternal, "open", err)
	}
	defer idx.Close()
	empty, err := idx.Empty()
	if err != nil {
		return newErr(KindInternal, "open", err)
	}
	if empty {
		return newErr(KindReindexRequired, "open", nil)
	}
	return nil
}

func (s *Session) prepareReindexIndex() error {
	oldPath := s.indexPath + ".old"
	if err := os.Rename(s.indexPath, oldPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newErr(KindIO, "open_reindex", fmt.Errorf("rename index aside: %w", err))
	}
	s.reindexOldPath = oldPath
	return nil
}

// FailReindex marks the session's reindex as unsuccessful, so Close
// restores the previous index instead of keeping the fresh, partial one
//.
func (s *Session) FailReindex() {
	s.reindexFailed = true
}

// validate performs end-to-end validation on open: the
// latest chunk's file_sha1 and data_sha1 are recomputed from the data file
// and compared, and the data file must end where that chunk's member ends;
// an empty index with an empty data file is valid.
func (s *Session) validate() error {
	chunks, err := s.idx.GetChunks()
	if err != nil {
		return newErr(KindInternal, "validate", err)
	}
	if len(chunks) == 0 {
		fi, err := s.f.Stat()
		if err != nil {
			return newErr(KindIO, "validate", err)
		}
		if fi.Size() != 0 {
			return newErr(KindCorrupt, "validate", errors.New("non-empty data file with empty index"))
		}
		return nil
	}
	latest := chunks[len(chunks)-1]
	if !latest.Finalized() {
		return newErr(KindCorrupt, "validate", errors.New("latest chunk was never finalized"))
	}

	fileSHA1, err := sha1Prefix(s.f, latest.Offset)
	if err != nil {
		return newErr(KindIO, "validate", err)
	}
	if fileSHA1 != latest.FileSHA1 {
		return newErr(KindCorrupt, "validate", fmt.Errorf("file_sha1 mismatch at chunk %d", latest.ID))
	}

	r := gzuncat.Open(s.f)
	if err := r.MemberStartFrom(latest.Offset); err != nil {
		return newErr(KindCorrupt, "validate", err)
	}
	h := sha1.New() //nolint:gosec
	n, err := io.Copy(h, readAdapter{r})
	if err != nil {
		return newErr(KindCorrupt, "validate", err)
	}
	if err := r.MemberEnd(); err != nil {
		return newErr(KindCorrupt, "validate", err)
	}
	if n != *latest.Length {
		return newErr(KindCorrupt, "validate", fmt.Errorf("chunk %d length mismatch: got %d want %d", latest.ID, n, *latest.Length))
	}
	if hex.EncodeToString(h.Sum(nil)) != *latest.DataSHA1 {
		return newErr(KindCorrupt, "validate", fmt.Errorf("data_sha1 mismatch at chunk %d", latest.ID))
	}
	if !r.EOF() {
		return newErr(KindCorrupt, "validate", fmt.Errorf("data file continues past chunk %d", latest.ID))
	}
	return nil
}

// sha1Prefix hashes the first n bytes of f without disturbing the file's
// position for subsequent reads.
func sha1Prefix(f *os.File, n int64) (string, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	defer func() { _, _ = f.Seek(pos, io.SeekStart) }()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha1.New() //nolint:gosec
	if _, err := io.CopyN(h, f, n); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readAdapter turns gzuncat's (0, nil)-at-member-EOF convention into a
// conventional io.Reader for use with io.Copy.
type readAdapter struct{ r *gzuncat.Reader }

func (a readAdapter) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Close ends any active append, closes the index, releases the lock, and
// closes the data file descriptor. Errors from each step are aggregated;
// the first failure wins.
func (s *Session) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.append != nil {
		record(s.endAppend())
	}

	if s.reindexMode {
		record(s.finishReindex())
	}

	record(s.teardown())
	return firstErr
}

// teardown closes the index, releases the lock, and closes the fd,
// regardless of whether the session ever finished opening successfully.
func (s *Session) teardown() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.idx != nil {
		record(s.idx.Close())
		s.idx = nil
	}
	if s.lock != nil {
		record(s.lock.Release())
		s.lock = nil
	}
	if s.f != nil {
		record(s.f.Close())
		s.f = nil
	}
	return firstErr
}

func (s *Session) finishReindex() error {
	if s.reindexOldPath == "" {
		return nil
	}
	if s.reindexFailed {
		if s.idx != nil {
			_ = s.idx.Close()
			s.idx = nil
		}
		_ = os.Remove(s.indexPath)
		if _, err := os.Stat(s.reindexOldPath); err == nil {
			if err := os.Rename(s.reindexOldPath, s.indexPath); err != nil {
				return newErr(KindIO, "close", fmt.Errorf("restore previous index: %w", err))
			}
		}
		return newErr(KindDataErr, "close", errors.New("reindex failed"))
	}
	_ = os.Remove(s.reindexOldPath)
	return nil
}
