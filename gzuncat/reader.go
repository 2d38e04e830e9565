// Package gzuncat provides sequential and seeking iteration over a file
// that is a concatenation of independent gzip members (RFC 1952). Each
// member is decoded on its own; a reader never crosses a member
// boundary unless explicitly told to move to the next one.
package gzuncat

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrCorruptMember is returned (optionally wrapped) when a gzip member has
// an invalid header, a CRC mismatch, or ends before its declared length.
var ErrCorruptMember = errors.New("gzuncat: corrupt gzip member")

// ReadSeeker is the minimal file-like interface gzuncat needs: a backup
// session hands it the locked *os.File directly.
type ReadSeeker interface {
	io.Reader
	io.Seeker
}

// countingReader tracks how many bytes have actually been pulled from the
// underlying file, so the reader can recover its logical position even
// after a bufio.Reader has buffered ahead past a member boundary.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Reader iterates concatenated gzip members in an underlying file.
type Reader struct {
	f ReadSeeker

	cr *countingReader
	br *bufio.Reader // persists across members so gz.Reset can reuse it

	memberOffset int64 // byte offset of the current/last-started member
	gz           *gzip.Reader
	inMember     bool
	memberEOF    bool
	atEOF        bool
}

// Open positions a new Reader at offset 0 of f with no member started.
func Open(f ReadSeeker) *Reader {
	return &Reader{f: f}
}

// logicalPos returns the offset, within f, of the next byte br will hand
// out. cr.n counts bytes actually read from f, which runs ahead of what br
// has delivered to its caller by however much it has buffered.
func (r *Reader) logicalPos() int64 {
	return r.cr.n - int64(r.br.Buffered())
}

// Offset returns the byte offset of the member most recently started.
func (r *Reader) Offset() int64 {
	return r.memberOffset
}

// MemberStart begins decoding a new gzip member at the reader's current
// logical position: right after the previously ended member, or byte 0 if
// none has been read yet.
func (r *Reader) MemberStart() error {
	if r.br != nil {
		return r.startMemberAt(r.logicalPos())
	}
	return r.startMemberAt(0)
}

// MemberStartFrom begins decoding a new gzip member at the given absolute
// byte offset, seeking the underlying file there first if the reader isn't
// logically positioned there already.
func (r *Reader) MemberStartFrom(offset int64) error {
	return r.startMemberAt(offset)
}

// startMemberAt positions the reader at offset and (re)reads a gzip header
// from there. It reuses the persistent buffered reader and gzip.Reader
// across members via gz.Reset whenever the reader is already logically
// sitting at offset, since a fresh gzip.NewReader over a non-ByteReader
// source reads ahead through its own internal buffer and leaves the file
// positioned well past the member it just decoded.
func (r *Reader) startMemberAt(offset int64) error {
	if r.inMember {
		return fmt.Errorf("gzuncat: member already started")
	}
	if r.br == nil || r.logicalPos() != offset {
		if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("gzuncat: seek: %w", err)
		}
		r.cr = &countingReader{r: r.f, n: offset}
		r.br = bufio.NewReader(r.cr)
	}
	if r.gz == nil {
		gz, err := gzip.NewReader(r.br)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptMember, err)
		}
		r.gz = gz
	} else if err := r.gz.Reset(r.br); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMember, err)
	}
	r.gz.Multistream(false)
	r.memberOffset = offset
	r.inMember = true
	r.memberEOF = false
	return nil
}

// Read reads decompressed bytes from the current member only. At the end
// of the member's content it returns (0, nil) rather than (0, io.EOF), so
// callers can distinguish "member exhausted" from "stream closed"; use
// MemberEOF to confirm. A malformed member surfaces ErrCorruptMember.
func (r *Reader) Read(buf []byte) (int, error) {
	if !r.inMember {
		return 0, fmt.Errorf("gzuncat: read with no member started")
	}
	if r.memberEOF {
		return 0, nil
	}
	n, err := r.gz.Read(buf)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		r.memberEOF = true
		return n, nil
	}
	return n, fmt.Errorf("%w: %v", ErrCorruptMember, err)
}

// MemberEOF reports whether the current member's content has been fully
// consumed.
func (r *Reader) MemberEOF() bool {
	return r.memberEOF
}

// MemberEnd finalizes the current member (validating its trailing CRC and
// length) and repositions the reader at the start of the next member, if
// any. It must be called even if the member was not read to completion.
func (r *Reader) MemberEnd() error {
	if !r.inMember {
		return fmt.Errorf("gzuncat: no member to end")
	}
	// Drain any unread content so the trailing CRC/length is validated.
	if !r.memberEOF {
		if _, err := io.Copy(io.Discard, r.gz); err != nil {
			r.inMember = false
			return fmt.Errorf("%w: %v", ErrCorruptMember, err)
		}
	}
	if err := r.gz.Close(); err != nil {
		r.inMember = false
		return fmt.Errorf("%w: %v", ErrCorruptMember, err)
	}
	r.inMember = false
	// r.gz is kept (not nil'd) so the next startMemberAt can Reset it
	// instead of allocating a fresh decompressor.
	r.checkEOF()
	return nil
}

// checkEOF determines whether any gzip member remains after the reader's
// current logical position. It must not use the raw file descriptor's
// position as a proxy for that: once br has buffered ahead, the fd is
// already past the logical position, so it temporarily seeks to read the
// file's length and then restores the fd to cr.n, the exact point br's
// buffering left it at, leaving br's buffered bytes still valid.
func (r *Reader) checkEOF() {
	if r.br == nil {
		// Nothing read yet: the logical position is offset 0.
		end, err := r.f.Seek(0, io.SeekEnd)
		if err != nil {
			return
		}
		r.atEOF = end == 0
		return
	}
	logical := r.logicalPos()
	rawPos := r.cr.n
	end, err := r.f.Seek(0, io.SeekEnd)
	if err != nil {
		return
	}
	r.atEOF = logical >= end
	_, _ = r.f.Seek(rawPos, io.SeekStart)
}

// EOF reports whether the underlying file has no further gzip members to
// decode.
func (r *Reader) EOF() bool {
	if !r.inMember {
		r.checkEOF()
	}
	return r.atEOF
}
