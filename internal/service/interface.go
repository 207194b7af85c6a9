package service

import (
	"context"
	"errors"

	"github.com/droid-bg/Outlook-MCP-Server/internal/format"
)

// ErrSearchTextRequired marks a request that is missing its required
// search text. Surfaced to the caller before any session work happens.
var ErrSearchTextRequired = errors.New("search_text parameter is required")

// MailService exposes the three mail-search operations. Implementations
// serialize all session access internally; callers may invoke these
// concurrently from any goroutine.
type MailService interface {
	CheckMailboxAccess(ctx context.Context) (*format.AccessResponse, error)
	SearchMail(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.SearchResponse, error)
	ListContacts(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.ContactsResponse, error)
}
