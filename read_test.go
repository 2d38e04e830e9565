package backup

import (
	"errors"
	"testing"

	"github.com/cyrusbackup/backup/index"
	"github.com/stretchr/testify/require"
)

func TestMailboxToDlistRoundTrips(t *testing.T) {
	dataPath, indexPath := tempPaths(t)
	s, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, s.StartAppend())
	require.NoError(t, s.Append("MAILBOX", mailboxPayload("U1", "INBOX"), 1000))
	require.NoError(t, s.EndAppend())
	require.NoError(t, s.Close())

	s2, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	defer s2.Close()

	mbox, err := s2.GetMailboxByName("INBOX", false)
	require.NoError(t, err)

	kv, err := MailboxToDlist(mbox)
	require.NoError(t, err)
	require.Equal(t, "U1", kv.Get("uniqueid").String())
	require.Equal(t, "INBOX", kv.Get("mboxname").String())

	uidValidity, err := kv.Get("uidvalidity").Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), uidValidity)
}

func TestMailboxForeachAbortIsSurfaced(t *testing.T) {
	dataPath, indexPath := tempPaths(t)
	s, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, s.StartAppend())
	require.NoError(t, s.Append("MAILBOX", mailboxPayload("U1", "INBOX"), 1000))
	require.NoError(t, s.Append("MAILBOX", mailboxPayload("U2", "Sent"), 1001))
	require.NoError(t, s.EndAppend())
	defer s.Close()

	stop := errors.New("stop")
	seen := 0
	err = s.MailboxForeach(0, false, func(index.Mailbox) error {
		seen++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, seen)
}

func TestMessageForeachVisitsInInsertionOrder(t *testing.T) {
	dataPath, indexPath := tempPaths(t)
	s, err := OpenPaths(dataPath, indexPath)
	require.NoError(t, err)
	require.NoError(t, s.StartAppend())
	g1, g2 := testGUID(0x01), testGUID(0x02)
	require.NoError(t, s.Append("MESSAGE", messagePayload(g1, "p", "one"), 1000))
	require.NoError(t, s.Append("MESSAGE", messagePayload(g2, "p", "two"), 1001))
	require.NoError(t, s.EndAppend())
	defer s.Close()

	var guids []string
	require.NoError(t, s.MessageForeach(0, func(m index.Message) error {
		guids = append(guids, m.GUID)
		return nil
	}))
	require.Equal(t, []string{g1, g2}, guids)
}
