// Package search walks the mailbox folder tree and runs the filtered
// per-folder queries that produce raw mail records. Like the session
// manager, the engine only runs on the affinity executor's worker; its
// caches need no locks because access is serialized by construction.
package search

import (
	"context"
	"sort"

	"github.com/droid-bg/Outlook-MCP-Server/internal/config"
	"github.com/droid-bg/Outlook-MCP-Server/internal/executor"
	"github.com/droid-bg/Outlook-MCP-Server/internal/logger"
	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
	"github.com/droid-bg/Outlook-MCP-Server/internal/session"
	"github.com/droid-bg/Outlook-MCP-Server/internal/store"
)

// maxFolderDepth caps the recursive folder walk. Real stores are
// tree-shaped, but a misbehaving enumeration must not recurse forever.
const maxFolderDepth = 32

const sentItemsFolder = "Sent Items"

type Engine struct {
	st      store.Store
	session *session.Manager
	cfg     *config.Config
	logger  *logger.Logger

	cache *resultCache

	// folderCache holds folder-by-name lookups (e.g. Sent Items) per
	// mailbox. Session-derived, so it is dropped when the session resets.
	folderCache map[string]store.Folder
}

func NewEngine(st store.Store, mgr *session.Manager, cfg *config.Config, log *logger.Logger) *Engine {
	e := &Engine{
		st:          st,
		session:     mgr,
		cfg:         cfg,
		logger:      log,
		cache:       newResultCache(),
		folderCache: make(map[string]store.Folder),
	}
	mgr.OnReset(func() {
		e.folderCache = make(map[string]store.Folder)
	})
	return e
}

type scopedFolder struct {
	folder store.Folder
	scope  model.Scope
}

// Search finds messages whose subject or body contains text. The cache
// hit is the only path that returns without touching the session; every
// other path ensures a live session first.
func (e *Engine) Search(ctx context.Context, text string, includePersonal, includeShared bool, maxResults int) ([]*model.MailRecord, error) {
	if !executor.FromWorker(ctx) {
		return nil, session.ErrOffWorker
	}
	if maxResults <= 0 {
		return []*model.MailRecord{}, nil
	}

	key := cacheKey(text, includePersonal, includeShared, maxResults)
	if cached, ok := e.cache.get(key); ok {
		e.logger.Infof("Returning cached results for %q", text)
		return cached, nil
	}

	if err := e.session.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	folders := e.collectFolders(ctx, includePersonal, includeShared)
	e.logger.Infof("Searching %d folders for %q", len(folders), text)

	seen := make(map[string]bool)
	var all []*model.MailRecord
	for _, sf := range folders {
		if len(all) >= maxResults {
			break
		}
		// Each folder may fetch up to the full cap: only deduplicated
		// records count against the budget, so a duplicate must not
		// crowd out a unique match behind it.
		records, err := e.searchFolder(sf.folder, text, maxResults)
		if err != nil {
			// Folder-level failure is non-fatal to the overall search.
			e.logger.Warnf("Skipping folder %q: %v", sf.folder.Name(), err)
			continue
		}
		for _, r := range records {
			if len(all) >= maxResults {
				break
			}
			if r.EntryID != "" {
				if seen[r.EntryID] {
					continue
				}
				seen[r.EntryID] = true
			}
			r.Mailbox = sf.scope
			all = append(all, r)
		}
	}

	// Newest first; records without a timestamp sort last.
	sort.SliceStable(all, func(i, j int) bool {
		ti, iok := all[i].ReceivedUTC()
		tj, jok := all[j].ReceivedUTC()
		if iok != jok {
			return iok
		}
		return ti.After(tj)
	})

	if len(all) > maxResults {
		all = all[:maxResults]
	}
	if all == nil {
		all = []*model.MailRecord{}
	}
	e.cache.put(key, all)
	return all, nil
}

// searchFolder runs the subject+body query, retrying with a subject-only
// filter when the wider query fails.
func (e *Engine) searchFolder(f store.Folder, text string, limit int) ([]*model.MailRecord, error) {
	records, err := f.Search(text, false, limit)
	if err == nil {
		return records, nil
	}
	e.logger.Warnf("Query failed in %q, retrying subject-only: %v", f.Name(), err)
	return f.Search(text, true, limit)
}

// collectFolders builds the ordered folder list: personal inbox tree plus
// Sent Items, then the shared mailbox's tree when one is configured and
// resolvable. An unresolvable shared mailbox silently excludes shared
// scope.
func (e *Engine) collectFolders(ctx context.Context, includePersonal, includeShared bool) []scopedFolder {
	var folders []scopedFolder

	if includePersonal {
		mb, err := e.st.Personal()
		if err != nil {
			e.logger.Errorf("Personal mailbox unavailable: %v", err)
		} else {
			folders = append(folders, e.collectMailbox(mb, model.ScopePersonal)...)
		}
	}

	if includeShared && e.cfg.SharedMailboxConfigured() {
		mb, err := e.session.Shared(ctx)
		if err != nil {
			e.logger.Errorf("Error resolving shared mailbox: %v", err)
		} else {
			folders = append(folders, e.collectMailbox(mb, model.ScopeShared)...)
		}
	}

	return folders
}

func (e *Engine) collectMailbox(mb store.Mailbox, scope model.Scope) []scopedFolder {
	var folders []scopedFolder

	inbox, err := mb.Inbox()
	if err != nil {
		e.logger.Warnf("Could not open inbox of %q: %v", mb.DisplayName(), err)
	} else {
		e.collectTree(inbox, scope, 0, &folders)
	}

	if e.cfg.IncludeSentItems {
		if sent := e.folderByName(mb, sentItemsFolder); sent != nil {
			folders = append(folders, scopedFolder{folder: sent, scope: scope})
		}
	}

	return folders
}

// collectTree appends folder and every subfolder beneath it, depth-first
// in child enumeration order. Enumeration errors skip the subtree without
// aborting the walk.
func (e *Engine) collectTree(f store.Folder, scope model.Scope, depth int, out *[]scopedFolder) {
	*out = append(*out, scopedFolder{folder: f, scope: scope})
	if depth >= maxFolderDepth {
		e.logger.Warnf("Folder depth cap reached at %q", f.Name())
		return
	}
	subs, err := f.Subfolders()
	if err != nil {
		e.logger.Debugf("Error enumerating subfolders of %q: %v", f.Name(), err)
		return
	}
	for _, sub := range subs {
		e.collectTree(sub, scope, depth+1, out)
	}
}

func (e *Engine) folderByName(mb store.Mailbox, name string) store.Folder {
	key := mb.DisplayName() + "/" + name
	if f, ok := e.folderCache[key]; ok {
		return f
	}
	f, err := mb.FolderByName(name)
	if err != nil {
		e.logger.Debugf("Folder lookup %q failed: %v", name, err)
		return nil
	}
	if f != nil {
		e.folderCache[key] = f
	}
	return f
}
