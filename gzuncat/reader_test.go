package gzuncat

import (
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func writeMember(t *testing.T, f *os.File, content string) int64 {
	t.Helper()
	offset, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return offset
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "gzuncat-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestReadSingleMember(t *testing.T) {
	f := tempFile(t)
	writeMember(t, f, "hello world")
	_, err := f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	r := Open(f)
	require.NoError(t, r.MemberStart())
	require.Equal(t, int64(0), r.Offset())

	buf, err := io.ReadAll(readerFunc(r.Read))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf))
	require.True(t, r.MemberEOF())
	require.NoError(t, r.MemberEnd())
	require.True(t, r.EOF())
}

func TestReadTwoMembersSeparately(t *testing.T) {
	f := tempFile(t)
	off1 := writeMember(t, f, "first")
	off2 := writeMember(t, f, "second")
	_, err := f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	r := Open(f)
	require.NoError(t, r.MemberStart())
	require.Equal(t, off1, r.Offset())
	b1, err := io.ReadAll(readerFunc(r.Read))
	require.NoError(t, err)
	require.Equal(t, "first", string(b1))
	require.NoError(t, r.MemberEnd())
	require.False(t, r.EOF())

	require.NoError(t, r.MemberStart())
	require.Equal(t, off2, r.Offset())
	b2, err := io.ReadAll(readerFunc(r.Read))
	require.NoError(t, err)
	require.Equal(t, "second", string(b2))
	require.NoError(t, r.MemberEnd())
	require.True(t, r.EOF())
}

func TestMemberStartFromSeeksToOffset(t *testing.T) {
	f := tempFile(t)
	writeMember(t, f, "skip me")
	off2 := writeMember(t, f, "target")

	r := Open(f)
	require.NoError(t, r.MemberStartFrom(off2))
	require.Equal(t, off2, r.Offset())
	b, err := io.ReadAll(readerFunc(r.Read))
	require.NoError(t, err)
	require.Equal(t, "target", string(b))
	require.NoError(t, r.MemberEnd())
}

func TestCorruptMemberDetected(t *testing.T) {
	f := tempFile(t)
	writeMember(t, f, "flip a byte")
	// Overwrite the high byte of the ISIZE trailer, which gzip verifies.
	_, err := f.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff})
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	r := Open(f)
	require.NoError(t, r.MemberStart())
	_, err = io.ReadAll(readerFunc(r.Read))
	require.ErrorIs(t, err, ErrCorruptMember)
}

// readerFunc adapts a Read method to io.Reader for use with io.ReadAll,
// translating gzuncat's (0, nil) "member EOF" convention into io.EOF.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	n, err := f(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
