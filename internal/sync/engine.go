package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/bus"
	"github.com/tduarte/mailmind/internal/mail"
	"github.com/tduarte/mailmind/internal/status"
	"github.com/tduarte/mailmind/internal/store"
)

var (
	// ErrSyncInProgress is returned when a folder sync is requested while
	// another one is still running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotConnected is returned for operations that need a live IMAP session.
	ErrNotConnected = errors.New("not connected to mail server")
)

// Mailbox is the IMAP surface the engine needs. *mail.Client implements it;
// tests substitute a fake.
type Mailbox interface {
	Connect() error
	Close() error
	Connected() bool
	ListFolders() ([]string, error)
	SelectFolder(folder string) (uint32, error)
	UIDsAfter(lastUID uint32) ([]uint32, error)
	FetchRaw(uid uint32) ([]byte, []string, error)
}

// Result summarizes one folder sync.
type Result struct {
	Folder        string `json:"folder"`
	NewMessages   int    `json:"new_messages"`
	Skipped       int    `json:"skipped"`
	Errors        int    `json:"errors"`
	TotalInFolder uint32 `json:"total_in_folder"`
	LastUID       uint32 `json:"last_uid"`
}

// Engine drives incremental IMAP synchronization. One sync runs at a time;
// per-folder cursors in the store make every run resumable.
type Engine struct {
	db      *store.DB
	mailbox Mailbox
	machine *status.Machine
	bus     *bus.Bus
	log     *zap.Logger

	// Guards the single-sync invariant. TryLock instead of Lock so a second
	// caller gets ErrSyncInProgress immediately rather than queueing.
	syncMu sync.Mutex
}

// NewEngine creates a sync engine over the given mailbox and store.
func NewEngine(db *store.DB, mailbox Mailbox, machine *status.Machine, b *bus.Bus, log *zap.Logger) *Engine {
	return &Engine{
		db:      db,
		mailbox: mailbox,
		machine: machine,
		bus:     b,
		log:     log.Named("sync"),
	}
}

// Connect establishes the IMAP session and moves to Connected.
func (e *Engine) Connect() error {
	if err := e.mailbox.Connect(); err != nil {
		return err
	}
	if err := e.machine.Transition(status.Connected); err != nil {
		_ = e.mailbox.Close()
		return err
	}
	return nil
}

// Disconnect tears down the IMAP session. Always ends in Disconnected.
func (e *Engine) Disconnect() error {
	err := e.mailbox.Close()
	if tErr := e.machine.Transition(status.Disconnected); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

// State returns the current connection state.
func (e *Engine) State() status.State {
	return e.machine.Current()
}

// ListFolders returns the mailbox folder names.
func (e *Engine) ListFolders() ([]string, error) {
	if !e.mailbox.Connected() {
		return nil, ErrNotConnected
	}
	return e.mailbox.ListFolders()
}

// FolderCount selects a folder and returns its message count.
func (e *Engine) FolderCount(folder string) (uint32, error) {
	if !e.mailbox.Connected() {
		return 0, ErrNotConnected
	}
	return e.mailbox.SelectFolder(folder)
}

// SyncFolder incrementally syncs one folder: fetch every message with a UID
// above the folder cursor, store it, and advance the cursor to the highest
// UID that was fully handled. A message that fails to fetch leaves the
// cursor behind it so the next run retries; duplicates and store failures
// advance past it so one poison message cannot wedge the folder.
func (e *Engine) SyncFolder(ctx context.Context, folder string, limit int) (*Result, error) {
	if !e.mailbox.Connected() {
		return nil, ErrNotConnected
	}
	if !e.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.syncMu.Unlock()

	if err := e.machine.Transition(status.Syncing); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.machine.Transition(status.Connected); err != nil {
			e.log.Warn("leave syncing state", zap.Error(err))
		}
	}()

	result := &Result{Folder: folder}

	total, err := e.mailbox.SelectFolder(folder)
	if err != nil {
		return nil, fmt.Errorf("select folder %s: %w", folder, err)
	}
	result.TotalInFolder = total

	state, err := e.db.GetOrCreateSyncState(folder)
	if err != nil {
		return nil, err
	}
	lastUID := state.LastUID
	result.LastUID = lastUID

	uids, err := e.mailbox.UIDsAfter(lastUID)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folder, err)
	}
	if len(uids) == 0 {
		e.log.Info("folder up to date", zap.String("folder", folder), zap.Uint32("last_uid", lastUID))
		return result, nil
	}
	if limit > 0 && len(uids) > limit {
		e.log.Info("limiting batch", zap.Int("available", len(uids)), zap.Int("limit", limit))
		uids = uids[:limit]
	}

	e.log.Info("syncing new messages",
		zap.String("folder", folder),
		zap.Int("count", len(uids)),
		zap.Uint32("from_uid", uids[0]),
		zap.Uint32("to_uid", uids[len(uids)-1]))

	maxUID := lastUID
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			break
		}

		raw, flags, err := e.mailbox.FetchRaw(uid)
		if err != nil {
			// The cursor stays behind this UID; the next sync retries it.
			e.log.Error("fetch failed", zap.Uint32("uid", uid), zap.Error(err))
			result.Errors++
			continue
		}

		parsed := mail.Parse(raw, uid, folder, flags)
		inserted, err := e.db.InsertEmail(parsed.Email())
		switch {
		case err != nil:
			e.log.Error("store failed", zap.Uint32("uid", uid),
				zap.String("message_id", parsed.MessageID), zap.Error(err))
			result.Errors++
		case inserted:
			result.NewMessages++
		default:
			result.Skipped++
		}
		if uid > maxUID {
			maxUID = uid
		}
	}

	if maxUID > lastUID {
		if err := e.db.AdvanceSyncState(folder, maxUID, result.NewMessages); err != nil {
			return result, err
		}
		result.LastUID = maxUID
	}

	e.log.Info("sync complete",
		zap.String("folder", folder),
		zap.Int("new", result.NewMessages),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))

	e.bus.Emit("sync.folder_synced", *result)
	return result, nil
}

// SyncAll syncs each configured folder in order. Per-folder failures are
// collected into the results rather than aborting the run.
func (e *Engine) SyncAll(ctx context.Context, folders []string, limit int) ([]Result, error) {
	var results []Result
	for _, folder := range folders {
		r, err := e.SyncFolder(ctx, folder, limit)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) || errors.Is(err, ErrNotConnected) {
				return results, err
			}
			e.log.Error("folder sync failed", zap.String("folder", folder), zap.Error(err))
			results = append(results, Result{Folder: folder, Errors: 1})
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

// Cursors returns the persisted per-folder sync state.
func (e *Engine) Cursors() ([]store.SyncState, error) {
	return e.db.ListSyncStates()
}
