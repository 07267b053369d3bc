// Package sessionstore implements the Session Store: CRUD over
// session records plus a maintained secondary index.
package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/opencode-ai/sandbox-gateway/internal/errs"
	"github.com/opencode-ai/sandbox-gateway/internal/eventbus"
	"github.com/opencode-ai/sandbox-gateway/internal/objectstore"
	"github.com/opencode-ai/sandbox-gateway/internal/storekeys"
)

// Status is a Session's lifecycle state.
type Status string

const (
	StatusCreating Status = "creating"
	StatusActive   Status = "active"
	StatusIdle     Status = "idle"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Repository describes the git repository cloned into a session's sandbox.
type Repository struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

// SessionConfig holds session-scoped defaults.
type SessionConfig struct {
	DefaultModel string `json:"defaultModel"`
}

// Session is the full session record.
type Session struct {
	SessionID          string         `json:"sessionId"`
	SandboxID          string         `json:"sandboxId"`
	CreatedAt          int64          `json:"createdAt"`
	LastActivity       int64          `json:"lastActivity"`
	Status             Status         `json:"status"`
	WorkspacePath      string         `json:"workspacePath"`
	WebUIURL           string         `json:"webUiUrl,omitempty"`
	Repository         *Repository    `json:"repository,omitempty"`
	Title              string         `json:"title,omitempty"`
	Config             SessionConfig  `json:"config"`
	OpencodeSessionID  string         `json:"opencodeSessionId,omitempty"`
	ClonedRepos        []string       `json:"clonedRepos,omitempty"`
}

// IndexEntry is the lightweight per-session projection.
type IndexEntry struct {
	SessionID    string `json:"sessionId"`
	Status       Status `json:"status"`
	CreatedAt    int64  `json:"createdAt"`
	LastActivity int64  `json:"lastActivity"`
	Title        string `json:"title,omitempty"`
}

type index struct {
	Version   int                   `json:"version"`
	Sessions  map[string]IndexEntry `json:"sessions"`
	UpdatedAt int64                 `json:"updatedAt"`
}

// sessionIDPattern constrains a SessionId to lowercase alphanumeric groups
// separated by single hyphens, max 64 chars.
var sessionIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSessionID reports whether id satisfies the SessionId invariant.
func ValidSessionID(id string) bool {
	return len(id) > 0 && len(id) <= 64 && sessionIDPattern.MatchString(id)
}

// GenerateID returns a fresh 8-hex-character session id. Both the
// generator here and the SessionId regex in ValidSessionID are enforced
// independently at every construction path, including ids handed back
// from storage.
func GenerateID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessionstore: generating id: %w", err)
	}
	id := fmt.Sprintf("%x", buf)
	if !ValidSessionID(id) {
		return "", fmt.Errorf("sessionstore: generated id %q fails SessionId pattern", id)
	}
	return id, nil
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

// Get returns the session, or (nil, nil) if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	obj, err := s.objects.Get(ctx, storekeys.SessionKey(id))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, nil
		}
		return nil, errs.StorageRead("reading session "+id, err)
	}
	var sess Session
	if err := storekeys.DecodeSession(obj.Body, &sess); err != nil {
		return nil, errs.StorageRead("decoding session "+id, err)
	}
	if !ValidSessionID(sess.SessionID) {
		return nil, errs.StorageRead("decoding session "+id, fmt.Errorf("stored session id %q fails SessionId pattern", sess.SessionID))
	}
	return &sess, nil
}

// Put validates sess, writes the record, then upserts the index entry
// (record-first ordering avoids an index entry with no backing record).
// Publishes session.created or session.updated depending on whether a
// record already existed at this id.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	if !ValidSessionID(sess.SessionID) {
		return errs.Validation("SESSION_ID_INVALID", fmt.Sprintf("session id %q fails SessionId pattern", sess.SessionID))
	}
	_, getErr := s.objects.Get(ctx, storekeys.SessionKey(sess.SessionID))
	existed := getErr == nil

	body, err := storekeys.EncodeSession(sess)
	if err != nil {
		return errs.Validation("SESSION_SCHEMA_INVALID", err.Error())
	}
	if _, err := s.objects.Put(ctx, storekeys.SessionKey(sess.SessionID), body, objectstore.PutOptions{}); err != nil {
		return errs.StorageWrite("writing session "+sess.SessionID, err)
	}

	entry := IndexEntry{
		SessionID:    sess.SessionID,
		Status:       sess.Status,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
		Title:        sess.Title,
	}
	if err := s.upsertIndexEntry(ctx, entry); err != nil {
		return err
	}

	eventType := eventbus.SessionCreated
	if existed {
		eventType = eventbus.SessionUpdated
	}
	eventbus.Publish(eventbus.Event{Type: eventType, Data: entry})
	return nil
}

func (s *Store) upsertIndexEntry(ctx context.Context, entry IndexEntry) error {
	err := objectstore.UpdateIndex(ctx, s.objects, storekeys.SessionIndexKey, func(current []byte, exists bool) ([]byte, error) {
		idx := index{Version: 1, Sessions: map[string]IndexEntry{}}
		if exists {
			if err := storekeys.DecodeSessionIndex(current, &idx); err != nil {
				return nil, err
			}
			if idx.Sessions == nil {
				idx.Sessions = map[string]IndexEntry{}
			}
		}
		idx.Sessions[entry.SessionID] = entry
		idx.UpdatedAt = nowMillis()
		return storekeys.EncodeSessionIndex(idx)
	})
	if err != nil {
		return errs.StorageWrite("updating session index", err)
	}
	return nil
}

// Delete removes the record, then the index entry. Callers must cascade run
// deletion themselves first; the store does not couple the two domains.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.objects.Delete(ctx, storekeys.SessionKey(id)); err != nil {
		return errs.StorageWrite("deleting session "+id, err)
	}
	err := objectstore.UpdateIndex(ctx, s.objects, storekeys.SessionIndexKey, func(current []byte, exists bool) ([]byte, error) {
		idx := index{Version: 1, Sessions: map[string]IndexEntry{}}
		if exists {
			if err := storekeys.DecodeSessionIndex(current, &idx); err != nil {
				return nil, err
			}
		}
		delete(idx.Sessions, id)
		idx.UpdatedAt = nowMillis()
		return storekeys.EncodeSessionIndex(idx)
	})
	if err != nil {
		return errs.StorageWrite("updating session index after delete", err)
	}
	eventbus.Publish(eventbus.Event{Type: eventbus.SessionDeleted, Data: id})
	return nil
}

// ListResult is a page of session index entries.
type ListResult struct {
	Entries []IndexEntry
	Total   int
}

// List reads the index only (never iterates the bucket), sorts descending
// by LastActivity, and slices [offset:offset+limit].
func (s *Store) List(ctx context.Context, limit, offset int) (*ListResult, error) {
	if limit <= 0 {
		limit = 100
	}
	idx, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]IndexEntry, 0, len(idx.Sessions))
	for _, e := range idx.Sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastActivity > entries[j].LastActivity })

	total := len(entries)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &ListResult{Entries: entries[offset:end], Total: total}, nil
}

func (s *Store) readIndex(ctx context.Context) (*index, error) {
	obj, err := s.objects.Get(ctx, storekeys.SessionIndexKey)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return &index{Version: 1, Sessions: map[string]IndexEntry{}}, nil
		}
		return nil, errs.StorageRead("reading session index", err)
	}
	var idx index
	if err := storekeys.DecodeSessionIndex(obj.Body, &idx); err != nil {
		return nil, errs.StorageRead("decoding session index", err)
	}
	if idx.Sessions == nil {
		idx.Sessions = map[string]IndexEntry{}
	}
	return &idx, nil
}

// AddClonedRepo appends url to sess.ClonedRepos if not already present;
// ClonedRepos is treated as a set.
func AddClonedRepo(sess *Session, url string) {
	if url == "" {
		return
	}
	for _, r := range sess.ClonedRepos {
		if r == url {
			return
		}
	}
	sess.ClonedRepos = append(sess.ClonedRepos, url)
}

// MarshalForDebug pretty-prints a session as indented JSON.
func MarshalForDebug(sess *Session) string {
	b, _ := json.MarshalIndent(sess, "", "  ")
	return string(b)
}
