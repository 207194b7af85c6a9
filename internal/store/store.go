// Package store defines the boundary to the external mail store. An open
// Store is a stateful session handle: implementations are not safe for
// concurrent use and must only ever be touched from the execution context
// that opened them. Serialization is the affinity executor's job, not the
// store's.
package store

import (
	"context"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
)

// Store is the automation session over one mail account plus any shared
// mailboxes the account can reach.
type Store interface {
	// Open establishes the session. It must be called before any other
	// method and may be called again after Close to reconnect.
	Open(ctx context.Context) error

	// Ping is a cheap liveness probe of the open session.
	Ping() error

	// Close tears the session down. Closing an unopened store is a no-op.
	Close() error

	// Personal returns the account's own mailbox.
	Personal() (Mailbox, error)

	// ResolveShared resolves a shared mailbox address to a reachable
	// mailbox. Resolution failure is an error, not a panic; callers treat
	// it as non-fatal.
	ResolveShared(address string) (Mailbox, error)
}

// Mailbox is one store root (personal or shared).
type Mailbox interface {
	DisplayName() string
	Inbox() (Folder, error)

	// FolderByName finds a top-level folder by name, case-insensitively.
	// Returns nil without error when no such folder exists.
	FolderByName(name string) (Folder, error)
}

// Folder is one node of a mailbox folder tree.
type Folder interface {
	Name() string
	Subfolders() ([]Folder, error)

	// Search runs the store's native filtered query: a case-insensitive
	// substring match against subject or body, or subject only when
	// subjectOnly is set. Records come back most-recent-first, at most
	// limit of them, with EntryID and FolderName populated. The mailbox
	// scope tag is left for the caller to stamp.
	Search(text string, subjectOnly bool, limit int) ([]*model.MailRecord, error)
}
