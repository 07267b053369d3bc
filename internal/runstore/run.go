// Package runstore implements the Run Store: CRUD over run records plus a
// maintained global index with filters.
package runstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/storekeys"
)

// Status is a Run's lifecycle state.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the outcome attached by complete-run.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Run is the full run record. Created only by the workflow, never the
// dispatcher.
type Run struct {
	RunID       string   `json:"runId"`
	SessionID   string   `json:"sessionId"`
	WorkflowID  string   `json:"workflowId"`
	Status      Status   `json:"status"`
	Task        string   `json:"task"`
	Title       string   `json:"title,omitempty"`
	Model       string   `json:"model"`
	StartedAt   int64    `json:"startedAt"`
	CompletedAt int64    `json:"completedAt,omitempty"`
	Result      *Result  `json:"result,omitempty"`
}

// IndexEntry is the lightweight per-run projection.
type IndexEntry struct {
	RunID       string `json:"runId"`
	SessionID   string `json:"sessionId"`
	Status      Status `json:"status"`
	Title       string `json:"title,omitempty"`
	StartedAt   int64  `json:"startedAt"`
	CompletedAt int64  `json:"completedAt,omitempty"`
}

type index struct {
	Version   int                   `json:"version"`
	Runs      map[string]IndexEntry `json:"runs"`
	UpdatedAt int64                 `json:"updatedAt"`
}

// GenerateID returns a fresh "run-{8-hex}" id.
func GenerateID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("runstore: generating id: %w", err)
	}
	return fmt.Sprintf("run-%x", buf), nil
}

// Store implements CRUD + index maintenance over objectstore.Store.
type Store struct {
	objects objectstore.Store
}

// New returns a Store backed by objects.
func New(objects objectstore.Store) *Store {
	return &Store{objects: objects}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Get returns the run, or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	obj, err := s.objects.Get(ctx, storekeys.RunKey(id))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, nil
		}
		return nil, errs.StorageRead("reading run "+id, err)
	}
	var run Run
	if err := storekeys.DecodeRun(obj.Body, &run); err != nil {
		return nil, errs.StorageRead("decoding run "+id, err)
	}
	return &run, nil
}

// Put validates run, writes the record, then upserts the index entry
// (record-first ordering avoids an index entry with no backing record).
func (s *Store) Put(ctx context.Context, run *Run) error {
	body, err := storekeys.EncodeRun(run)
	if err != nil {
		return errs.Validation("RUN_SCHEMA_INVALID", err.Error())
	}
	if _, err := s.objects.Put(ctx, storekeys.RunKey(run.RunID), body, objectstore.PutOptions{}); err != nil {
		return errs.StorageWrite("writing run "+run.RunID, err)
	}
	return s.upsertIndexEntry(ctx, entryOf(run))
}

func entryOf(run *Run) IndexEntry {
	return IndexEntry{
		RunID:       run.RunID,
		SessionID:   run.SessionID,
		Status:      run.Status,
		Title:       run.Title,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// CompleteParams configures CompleteRun.
type CompleteParams struct {
	Success bool
	Output  string
	Error   string
	Title   string // optional; falls back to the existing title
}

// CompleteRun moves a run to its terminal status. The workflow's
// complete-run step and SweepStranded call this. A run's status never
// moves backward out of a terminal state, enforced here by rejecting an
// already-terminal run.
func (s *Store) CompleteRun(ctx context.Context, runID string, p CompleteParams) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return errs.StorageRead("Run not found", errs.RunNotFound(runID))
	}
	if run.Status == StatusCompleted || run.Status == StatusFailed {
		return errs.StorageWrite("run "+runID+" is already terminal", fmt.Errorf("state transition rejected: %s -> terminal", run.Status))
	}

	if p.Success {
		run.Status = StatusCompleted
	} else {
		run.Status = StatusFailed
	}
	run.CompletedAt = nowMillis()
	if p.Title != "" {
		run.Title = p.Title
	}
	output := p.Output
	run.Result = &Result{Success: p.Success, Output: output, Error: p.Error}

	return s.Put(ctx, run)
}

func (s *Store) upsertIndexEntry(ctx context.Context, entry IndexEntry) error {
	err := objectstore.UpdateIndex(ctx, s.objects, storekeys.RunIndexKey, func(current []byte, exists bool) ([]byte, error) {
		idx := index{Version: 1, Runs: map[string]IndexEntry{}}
		if exists {
			if err := storekeys.DecodeRunIndex(current, &idx); err != nil {
				return nil, err
			}
			if idx.Runs == nil {
				idx.Runs = map[string]IndexEntry{}
			}
		}
		idx.Runs[entry.RunID] = entry
		idx.UpdatedAt = nowMillis()
		return storekeys.EncodeRunIndex(idx)
	})
	if err != nil {
		return errs.StorageWrite("updating run index", err)
	}
	return nil
}

// Delete removes the record, then the index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.objects.Delete(ctx, storekeys.RunKey(id)); err != nil {
		return errs.StorageWrite("deleting run "+id, err)
	}
	return s.removeIndexEntry(ctx, id)
}

func (s *Store) removeIndexEntry(ctx context.Context, id string) error {
	err := objectstore.UpdateIndex(ctx, s.objects, storekeys.RunIndexKey, func(current []byte, exists bool) ([]byte, error) {
		idx := index{Version: 1, Runs: map[string]IndexEntry{}}
		if exists {
			if err := storekeys.DecodeRunIndex(current, &idx); err != nil {
				return nil, err
			}
		}
		delete(idx.Runs, id)
		idx.UpdatedAt = nowMillis()
		return storekeys.EncodeRunIndex(idx)
	})
	if err != nil {
		return errs.StorageWrite("updating run index after delete", err)
	}
	return nil
}

// DeleteRunsForSession cascades a session deletion: the
// index is updated first (making the rows invisible to listings), then the
// underlying records are best-effort deleted. Index entries pointing to
// missing records are worse than orphan records.
func (s *Store) DeleteRunsForSession(ctx context.Context, sessionID string) error {
	var toDelete []string
	err := objectstore.UpdateIndex(ctx, s.objects, storekeys.RunIndexKey, func(current []byte, exists bool) ([]byte, error) {
		idx := index{Version: 1, Runs: map[string]IndexEntry{}}
		if exists {
			if err := storekeys.DecodeRunIndex(current, &idx); err != nil {
				return nil, err
			}
		}
		toDelete = toDelete[:0]
		for id, e := range idx.Runs {
			if e.SessionID == sessionID {
				toDelete = append(toDelete, id)
			}
		}
		for _, id := range toDelete {
			delete(idx.Runs, id)
		}
		idx.UpdatedAt = nowMillis()
		return storekeys.EncodeRunIndex(idx)
	})
	if err != nil {
		return errs.StorageWrite("updating run index for cascade delete", err)
	}

	for _, id := range toDelete {
		_ = s.objects.Delete(ctx, storekeys.RunKey(id)) // best-effort
	}
	return nil
}

// ListFilter narrows ListRuns.
type ListFilter struct {
	SessionID string
	Status    Status
	Before    int64 // ms; zero means unfiltered
	Limit     int
}

// ListResult is a page of run index entries.
type ListResult struct {
	Entries []IndexEntry
	Total   int // filtered count before Limit
}

// ListRuns reads the index only, applies every supplied filter, sorts
// descending by StartedAt, and slices the first Limit.
func (s *Store) ListRuns(ctx context.Context, f ListFilter) (*ListResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	idx, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(idx.Runs))
	for _, e := range idx.Runs {
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Before != 0 && e.StartedAt >= f.Before {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartedAt > entries[j].StartedAt })

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return &ListResult{Entries: entries, Total: total}, nil
}

func (s *Store) readIndex(ctx context.Context) (*index, error) {
	obj, err := s.objects.Get(ctx, storekeys.RunIndexKey)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return &index{Version: 1, Runs: map[string]IndexEntry{}}, nil
		}
		return nil, errs.StorageRead("reading run index", err)
	}
	var idx index
	if err := storekeys.DecodeRunIndex(obj.Body, &idx); err != nil {
		return nil, errs.StorageRead("decoding run index", err)
	}
	if idx.Runs == nil {
		idx.Runs = map[string]IndexEntry{}
	}
	return &idx, nil
}

// SweepStranded moves runs stuck in StatusStarted older than olderThan to
// StatusFailed. An opt-in reconciliation sweep: nothing calls this
// automatically, a caller wires it into a cron or admin command as needed.
func (s *Store) SweepStranded(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	idx, err := s.readIndex(ctx)
	if err != nil {
		return 0, err
	}
	var stranded []string
	for id, e := range idx.Runs {
		if e.Status == StatusStarted && e.StartedAt < cutoff {
			stranded = append(stranded, id)
		}
	}
	swept := 0
	for _, id := range stranded {
		run, err := s.Get(ctx, id)
		if err != nil || run == nil {
			continue
		}
		if run.Status != StatusStarted {
			continue
		}
		if err := s.CompleteRun(ctx, id, CompleteParams{
			Success: false,
			Error:   "stranded: workflow did not complete",
		}); err == nil {
			swept++
		}
	}
	return swept, nil
}
