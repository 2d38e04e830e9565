// Package index implements the structured, transactional store of chunks,
// mailboxes, mailbox-messages, and messages: a schema-versioned SQLite
// database reached through database/sql and
// github.com/mattn/go-sqlite3, with named transactions nesting an append
// and its index updates into one logical unit.
package index

// Chunk is one row of the chunk table.
type Chunk struct {
	ID int64
	TsStart int64
	TsEnd *int64
	Offset int64
	Length *int64
	FileSHA1 string
	DataSHA1 *string
}

// Finalized reports whether the chunk has been ended successfully.
func (c *Chunk) Finalized() bool {
	return c.Length != nil && c.DataSHA1 != nil && c.TsEnd != nil
}

// Message is one row of the message table.
type Message struct {
	ID int64
	GUID string
	Partition string
	ChunkID int64
	Offset int64
	Length int64
}

// Mailbox is one row of the mailbox table, including
// the full replicated metadata set.
type Mailbox struct {
	ID int64
	LastChunkID int64
	UniqueID string
	MboxName string
	MboxType string
	LastUID uint32
	HighestModseq uint64
	RecentUID uint32
	RecentTime int64
	LastAppendDate int64
	Pop3LastLogin int64
	Pop3ShowAfter int64
	UIDValidity uint32
	Partition string
	ACL string
	Options string
	SyncCRC uint32
	SyncCRCAnnot uint32
	QuotaRoot string
	XconvModseq uint64
	Annotations string // serialized dlist bytes, re-parsed on demand
	Deleted int64 // 0 while live
	Records []MailboxMessage
}

// MailboxMessage is one row of the mailbox_message table.
type MailboxMessage struct {
	ID int64
	MailboxID int64
	MailboxUniqueID string
	MessageID *int64 // nil if no message row with this guid existed when the row was last upserted
	LastChunkID int64
	UID uint32
	Modseq uint64
	LastUpdated int64
	Flags string // serialized dlist bytes
	InternalDate int64
	GUID string
	Size uint32
	Annotations string // serialized dlist bytes
	Expunged bool
}
