package store

import (
	"fmt"
	"time"
)

// GetOrCreateSyncState returns the cursor for a folder, creating it at
// sequence 0 on first sight.
func (db *DB) GetOrCreateSyncState(folder string) (*SyncState, error) {
	_, err := db.Exec(`
		INSERT INTO sync_state (folder, last_uid, total_synced)
		VALUES (?, 0, 0)
		ON CONFLICT(folder) DO NOTHING`, folder)
	if err != nil {
		return nil, fmt.Errorf("create sync state: %w", err)
	}

	var s SyncState
	err = db.QueryRow(`
		SELECT id, folder, last_uid, last_sync, total_synced
		FROM sync_state WHERE folder = ?`, folder).
		Scan(&s.ID, &s.Folder, &s.LastUID, &s.LastSync, &s.TotalSynced)
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	return &s, nil
}

// AdvanceSyncState moves a folder's high-water mark forward and bumps the
// total-synced counter. The WHERE guard makes the cursor monotonic: a stale
// lastUID never rewinds committed progress.
func (db *DB) AdvanceSyncState(folder string, lastUID uint32, newCount int) error {
	_, err := db.Exec(`
		UPDATE sync_state
		SET last_uid = ?, last_sync = ?, total_synced = total_synced + ?
		WHERE folder = ? AND last_uid < ?`,
		lastUID, time.Now().UnixMilli(), newCount, folder, lastUID)
	if err != nil {
		return fmt.Errorf("advance sync state: %w", err)
	}
	return nil
}

// ListSyncStates returns all folder cursors.
func (db *DB) ListSyncStates() ([]SyncState, error) {
	rows, err := db.Query(`
		SELECT id, folder, last_uid, last_sync, total_synced
		FROM sync_state ORDER BY folder`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var states []SyncState
	for rows.Next() {
		var s SyncState
		if err := rows.Scan(&s.ID, &s.Folder, &s.LastUID, &s.LastSync, &s.TotalSynced); err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}
