// Package store persists the ordered collection of clip subscriptions as a
// flat JSON file. All access goes through a single mutex so command handlers
// and the reconcile tick never interleave writes, and every mutation is
// flushed with a temp-file-plus-rename so the on-disk snapshot is always a
// complete collection.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Subscription is one watched (streamer, destination channel) pair.
type Subscription struct {
	StreamerID    string `json:"streamer_id"`
	ServerID      string `json:"server_id"`
	ChannelID     string `json:"channel_id"`
	AddedByUserID string `json:"added_by_user_id"`
	// LastClipID is the most recently delivered clip; empty means no clip has
	// ever been delivered for this subscription.
	LastClipID string `json:"last_clip_id,omitempty"`
}

// Store owns the durable subscription collection.
type Store struct {
	mu   sync.Mutex
	path string
	subs []Subscription
}

// Open loads the collection from path. A missing file is an empty collection;
// an unparseable file is treated the same way rather than blocking startup.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.subs); err != nil {
		slog.Warn("subscription store unparseable, starting empty", slog.String("path", path), slog.Any("err", err))
		s.subs = nil
	}
	return s, nil
}

// All returns a copy of the full ordered collection.
func (s *Store) All() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// ListGuild returns the subscriptions belonging to one guild, in store order.
func (s *Store) ListGuild(serverID string) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscription
	for _, sub := range s.subs {
		if sub.ServerID == serverID {
			out = append(out, sub)
		}
	}
	return out
}

// Count returns the number of subscriptions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Add appends a subscription and persists. Uniqueness and the per-guild cap
// are the command surface's responsibility, enforced before calling.
func (s *Store) Add(sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return s.persistLocked()
}

// Remove deletes the (guild, streamer) record and persists. It reports
// whether a record was actually removed.
func (s *Store) Remove(serverID, streamerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.ServerID == serverID && sub.StreamerID == streamerID {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return true, s.persistLocked()
		}
	}
	return false, nil
}

type recordKey struct {
	serverID   string
	streamerID string
}

func keyOf(sub Subscription) recordKey {
	return recordKey{serverID: sub.ServerID, streamerID: sub.StreamerID}
}

// Commit applies one reconcile tick's outcome as a single atomic replacement
// of the collection: records in drop are removed, records in update have
// their last_clip_id carried over, and records added concurrently by command
// handlers (present in neither set) are preserved untouched.
func (s *Store) Commit(update, drop []Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := make(map[recordKey]string, len(update))
	for _, sub := range update {
		updated[keyOf(sub)] = sub.LastClipID
	}
	dropped := make(map[recordKey]bool, len(drop))
	for _, sub := range drop {
		dropped[keyOf(sub)] = true
	}
	next := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		k := keyOf(sub)
		if dropped[k] {
			continue
		}
		if last, ok := updated[k]; ok {
			sub.LastClipID = last
		}
		next = append(next, sub)
	}
	s.subs = next
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.subs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".subscriptions-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
