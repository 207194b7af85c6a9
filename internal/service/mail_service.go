package service

import (
	"context"
	"strings"

	"github.com/droid-bg/Outlook-MCP-Server/internal/config"
	"github.com/droid-bg/Outlook-MCP-Server/internal/executor"
	"github.com/droid-bg/Outlook-MCP-Server/internal/format"
	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/search"
	"github.com/droid-bg/Outlook-MCP-Server/internal/session"
)

type mailService struct {
	exec    *executor.Executor
	session *session.Manager
	engine  *search.Engine
	cfg     *config.Config
	logger  *logger.Logger
}

func NewMailService(
	exec *executor.Executor,
	mgr *session.Manager,
	engine *search.Engine,
	cfg *config.Config,
	logger *logger.Logger,
) MailService {
	return &mailService{
		exec:    exec,
		session: mgr,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *mailService) CheckMailboxAccess(ctx context.Context) (*format.AccessResponse, error) {
	s.logger.Info("Checking mailbox access...")

	value, err := s.exec.Submit(ctx, func(workerCtx context.Context) (interface{}, error) {
		return s.session.CheckAccess(workerCtx), nil
	})
	if err != nil {
		return nil, err
	}
	report := value.(*model.AccessReport)

	s.logger.Info("Mailbox access check completed")
	return format.BuildAccessResponse(report, s.cfg.SharedMailboxEmail), nil
}

// searchRecords runs the session-bound part of a search on the executor
// worker. Aggregation happens back on the caller's goroutine; it is pure
// computation and does not belong on the worker.
func (s *mailService) searchRecords(ctx context.Context, searchText string, includePersonal, includeShared bool) ([]*model.MailRecord, error) {
	value, err := s.exec.Submit(ctx, func(workerCtx context.Context) (interface{}, error) {
		return s.engine.Search(workerCtx, searchText, includePersonal, includeShared, s.cfg.MaxSearchResults)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*model.MailRecord), nil
}

func (s *mailService) SearchMail(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.SearchResponse, error) {
	if strings.TrimSpace(searchText) == "" {
		return nil, ErrSearchTextRequired
	}
	s.logger.Infof("Searching for emails containing %q", searchText)

	records, err := s.searchRecords(ctx, searchText, includePersonal, includeShared)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Found %d emails containing %q", len(records), searchText)
	return format.BuildSearchResponse(records, searchText, s.formatOptions()), nil
}

func (s *mailService) ListContacts(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.ContactsResponse, error) {
	if strings.TrimSpace(searchText) == "" {
		return nil, ErrSearchTextRequired
	}
	s.logger.Infof("Contact search for %q", searchText)

	records, err := s.searchRecords(ctx, searchText, includePersonal, includeShared)
	if err != nil {
		return nil, err
	}

	response := format.BuildContactsResponse(records, searchText)
	s.logger.Infof("Found %d unique contacts across %d emails", len(response.Contacts), len(records))
	return response, nil
}

func (s *mailService) formatOptions() format.Options {
	return format.Options{
		IncludeTimestamps: s.cfg.IncludeTimestamps,
		CleanHTML:         s.cfg.CleanHTMLContent,
		MaxRecipients:     s.cfg.MaxRecipientsDisplay,
		MaxBodyChars:      s.cfg.MaxBodyChars,
	}
}
