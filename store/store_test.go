package store

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	return s, path
}

func TestOpenMissingFile(t *testing.T) {
	s, _ := tempStore(t)
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 for missing file", got)
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 for corrupt file", got)
	}
}

func TestRoundTrip(t *testing.T) {
	s, path := tempStore(t)

	subs := []Subscription{
		{StreamerID: "42", ServerID: "g1", ChannelID: "c1", AddedByUserID: "u1", LastClipID: "C1"},
		{StreamerID: "43", ServerID: "g1", ChannelID: "c2", AddedByUserID: "u2"},
		{StreamerID: "42", ServerID: "g2", ChannelID: "c3", AddedByUserID: "u3", LastClipID: "C9"},
	}
	for _, sub := range subs {
		if err := s.Add(sub); err != nil {
			t.Fatalf("Add() unexpected error: %v", err)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	if got := reopened.All(); !reflect.DeepEqual(got, subs) {
		t.Errorf("round trip = %+v, want %+v", got, subs)
	}
}

func TestListGuild(t *testing.T) {
	s, _ := tempStore(t)
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Add(Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1"}))
	must(s.Add(Subscription{StreamerID: "43", ServerID: "g2", ChannelID: "c2"}))
	must(s.Add(Subscription{StreamerID: "44", ServerID: "g1", ChannelID: "c3"}))

	got := s.ListGuild("g1")
	if len(got) != 2 || got[0].StreamerID != "42" || got[1].StreamerID != "44" {
		t.Errorf("ListGuild(g1) = %+v, want streamers 42 and 44 in order", got)
	}
	if got := s.ListGuild("g3"); len(got) != 0 {
		t.Errorf("ListGuild(g3) = %+v, want empty", got)
	}
}

func TestRemove(t *testing.T) {
	s, path := tempStore(t)
	if err := s.Add(Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1"}); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Remove("g1", "42")
	if err != nil {
		t.Fatalf("Remove() unexpected error: %v", err)
	}
	if !removed {
		t.Error("Remove() = false, want true for existing record")
	}

	removed, err = s.Remove("g1", "42")
	if err != nil {
		t.Fatalf("Remove() unexpected error: %v", err)
	}
	if removed {
		t.Error("Remove() = true, want false for absent record")
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Count(); got != 0 {
		t.Errorf("Count() after remove = %d, want 0", got)
	}
}

func TestCommit(t *testing.T) {
	s, path := tempStore(t)
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	a := Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1"}
	b := Subscription{StreamerID: "43", ServerID: "g1", ChannelID: "c2"}
	must(s.Add(a))
	must(s.Add(b))

	updated := b
	updated.LastClipID = "C7"
	must(s.Commit([]Subscription{updated}, []Subscription{a}))

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got := reopened.All()
	if len(got) != 1 || got[0].StreamerID != "43" || got[0].LastClipID != "C7" {
		t.Errorf("Commit persisted %+v, want only streamer 43 with last_clip_id C7", got)
	}
}

func TestCommitPreservesConcurrentAdds(t *testing.T) {
	s, _ := tempStore(t)
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	a := Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1"}
	must(s.Add(a))

	// A command handler adds a record between the tick's snapshot and its
	// commit; the commit must not wipe it.
	late := Subscription{StreamerID: "99", ServerID: "g1", ChannelID: "c9"}
	must(s.Add(late))

	updated := a
	updated.LastClipID = "C1"
	must(s.Commit([]Subscription{updated}, nil))

	got := s.All()
	if len(got) != 2 {
		t.Fatalf("Commit left %d records, want 2: %+v", len(got), got)
	}
	if got[0].LastClipID != "C1" {
		t.Errorf("updated record = %+v, want last_clip_id C1", got[0])
	}
	if got[1] != late {
		t.Errorf("concurrently added record = %+v, want preserved as %+v", got[1], late)
	}
}

func TestLastClipIDOmittedWhenNeverDelivered(t *testing.T) {
	s, path := tempStore(t)
	if err := s.Add(Subscription{StreamerID: "42", ServerID: "g1", ChannelID: "c1", AddedByUserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "last_clip_id") {
		t.Errorf("persisted JSON contains last_clip_id for never-delivered record: %s", data)
	}
}
