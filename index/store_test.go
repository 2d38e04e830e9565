package index

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.index")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenEmptyIndex(t *testing.T) {
	s := openTestStore(t)
	empty, err := s.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestChunkLifecycle(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin("backup_index"))
	id, err := s.InsertChunk(100, 0, "filesha1")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.NoError(t, s.FinalizeChunk(id, 200, 42, "datasha1"))
	require.NoError(t, s.Commit("backup_index"))

	chunks, err := s.GetChunks()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.True(t, chunks[0].Finalized())
	require.Equal(t, int64(42), *chunks[0].Length)

	latest, err := s.GetLatestChunk()
	require.NoError(t, err)
	require.Equal(t, id, latest.ID)
}

func TestBeginRejectsNesting(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin("backup_index"))
	err := s.Begin("backup_index")
	require.Error(t, err)
	require.NoError(t, s.Rollback("backup_index"))
}

func TestAppendRollbackLeavesNoChunk(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin("backup_index"))
	_, err := s.InsertChunk(1, 0, "x")
	require.NoError(t, err)
	require.NoError(t, s.Rollback("backup_index"))

	empty, err := s.Empty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestMessageIdempotence(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin("backup_index"))
	chunkID, err := s.InsertChunk(1, 0, "x")
	require.NoError(t, err)
	require.NoError(t, s.FinalizeChunk(chunkID, 2, 10, "y"))

	id1, inserted1, err := s.InsertMessageIfNew("G1", "p", chunkID, 0, 5)
	require.NoError(t, err)
	require.True(t, inserted1)

	id2, inserted2, err := s.InsertMessageIfNew("G1", "p", chunkID, 100, 5)
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, id1, id2)
	require.NoError(t, s.Commit("backup_index"))

	msg, err := s.GetMessageByGUID("G1")
	require.NoError(t, err)
	require.Equal(t, int64(0), msg.Offset)
}

func TestMailboxUpsertAndRecords(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin("backup_index"))
	chunkID, err := s.InsertChunk(1, 0, "x")
	require.NoError(t, err)

	mboxID, err := s.UpsertMailbox(Mailbox{
		LastChunkID: chunkID,
		UniqueID:    "U1",
		MboxName:    "INBOX",
		LastUID:     5,
	})
	require.NoError(t, err)

	msgID, _, err := s.InsertMessageIfNew("G1", "p", chunkID, 0, 5)
	require.NoError(t, err)

	require.NoError(t, s.UpsertMailboxMessage(MailboxMessage{
		MailboxID:       mboxID,
		MailboxUniqueID: "U1",
		MessageID:       &msgID,
		LastChunkID:     chunkID,
		UID:             1,
		GUID:            "G1",
	}))
	require.NoError(t, s.Commit("backup_index"))

	mbox, err := s.GetMailboxByName("INBOX", true)
	require.NoError(t, err)
	require.Equal(t, "U1", mbox.UniqueID)
	require.Len(t, mbox.Records, 1)
	require.Equal(t, uint32(1), mbox.Records[0].UID)
}

func TestGetLatestChunkOnEmptyIndex(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetLatestChunk()
	require.True(t, errors.Is(err, sql.ErrNoRows))
}
