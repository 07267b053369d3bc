// Package storekeys defines the canonical object-store key layout and
// JSON-schema-validated encode/decode for every stored document.
package storekeys

import "fmt"

// SessionIndexKey is the single object holding every SessionIndexEntry.
const SessionIndexKey = "sessions/_index.json"

// RunIndexKey is the single object holding every RunIndexEntry, globally;
// there is no per-session sharding.
const RunIndexKey = "runs/_index.json"

// SessionKey returns the key of a session's full record.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s.json", sessionID)
}

// RunKey returns the key of a run's full record.
func RunKey(runID string) string {
	return fmt.Sprintf("runs/%s.json", runID)
}

// BackupKey returns the key of a session's archived agent-state backup.
func BackupKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/opencode-storage.tar.gz", sessionID)
}
