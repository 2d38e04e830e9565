package backup

import (
	"os"
	"testing"

	"github.com/cyrusbackup/backup/dlist"
	"github.com/stretchr/testify/require"
)

// S5: deleting the index requires reindex; running it recovers the same
// mailboxes and messages that were present before deletion.
func TestReindexRecoversMailboxesAndMessages(t *testing.T) {
	dataPath, indexPath := tempPaths(t)
	guid := testGUID(0x11)

	s, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, s.StartAppend())
	require.NoError(t, s.Append("MAILBOX", mailboxPayload("U1", "INBOX"), 1000))
	require.NoError(t, s.Append("MESSAGE", messagePayload(guid, "p", "hello"), 1001))
	require.NoError(t, s.EndAppend())

	require.NoError(t, s.StartAppend())
	require.NoError(t, s.Append("EXPUNGE", dlist.NewKV(
		dlist.KV{Key: "uniqueid", Value: dlist.Atom("U1")},
		dlist.KV{Key: "uid", Value: dlist.AtomU32(0)},
	), 2000))
	require.NoError(t, s.EndAppend())
	require.NoError(t, s.Close())

	require.NoError(t, os.Remove(indexPath))
	require.NoError(t, Reindex(dataPath, indexPath))

	s2, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	defer s2.Close()

	mbox, err := s2.GetMailboxByName("INBOX", false)
	require.NoError(t, err)
	require.Equal(t, "U1", mbox.UniqueID)

	msg, err := s2.GetMessage(guid)
	require.NoError(t, err)
	require.Equal(t, guid, msg.GUID)

	chunks, err := s2.GetChunks()
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

// Reindex idempotence: running reindex against an already-consistent pair
// produces the same query results.
func TestReindexIdempotent(t *testing.T) {
	dataPath, indexPath := tempPaths(t)
	s, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, s.StartAppend())
	require.NoError(t, s.Append("MAILBOX", mailboxPayload("U1", "INBOX"), 1000))
	require.NoError(t, s.EndAppend())
	require.NoError(t, s.Close())

	require.NoError(t, Reindex(dataPath, indexPath))

	s2, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	defer s2.Close()
	mbox, err := s2.GetMailboxByName("INBOX", false)
	require.NoError(t, err)
	require.Equal(t, "U1", mbox.UniqueID)
}
