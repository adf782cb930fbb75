// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package keyindex

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tomtom215/animedex/internal/config"
	"github.com/tomtom215/animedex/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.KeyIndexConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mapping(source, id string, canonical int64, hash string) models.KeyMapping {
	return models.KeyMapping{Source: source, SourceID: id, CanonicalID: canonical, ContentHash: hash, Confidence: 1}
}

func TestStore_PutLookup(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, ok, err := s.Lookup("anilist#1"); err != nil || ok {
		t.Fatalf("Lookup(missing) = %v, %v; want not found", ok, err)
	}

	in := mapping(models.SourceAniList, "1", 10, "abc")
	in.CanonicalKey = "AL_1"
	if err := s.Put([]models.KeyMapping{in}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok, err := s.Lookup("anilist#1")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	if got.CanonicalID != 10 || got.ContentHash != "abc" || got.CanonicalKey != "AL_1" {
		t.Errorf("Lookup() = %+v", got)
	}
}

func TestStore_SecondaryIndex(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	err := s.Put([]models.KeyMapping{
		mapping(models.SourceAniList, "1", 10, "a"),
		mapping(models.SourceKitsu, "9", 10, "b"),
		mapping(models.SourceKitsu, "8", 11, "c"),
	})
	if err != nil {
		t.Fatal(err)
	}

	keys, err := s.SourceKeys(10)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"anilist#1", "kitsu#9"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("SourceKeys(10) = %v, want %v", keys, want)
	}

	// Moving a key drops it from the old canonical id.
	if err := s.Put([]models.KeyMapping{mapping(models.SourceKitsu, "9", 11, "b")}); err != nil {
		t.Fatal(err)
	}
	keys, _ = s.SourceKeys(10)
	if want := []string{"anilist#1"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("SourceKeys(10) after move = %v, want %v", keys, want)
	}
	keys, _ = s.SourceKeys(11)
	if want := []string{"kitsu#8", "kitsu#9"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("SourceKeys(11) after move = %v, want %v", keys, want)
	}
}

func TestStore_CountEachRebuild(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Put([]models.KeyMapping{
		mapping(models.SourceAniList, "1", 1, "a"),
		mapping(models.SourceAniList, "2", 2, "b"),
	}); err != nil {
		t.Fatal(err)
	}
	if n, err := s.Count(); err != nil || n != 2 {
		t.Errorf("Count() = %d, %v; want 2", n, err)
	}

	var seen []string
	if err := s.Each(func(m models.KeyMapping) error {
		seen = append(seen, m.SourceKey())
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if want := []string{"anilist#1", "anilist#2"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("Each() keys = %v, want %v", seen, want)
	}

	stop := errors.New("stop")
	if err := s.Each(func(models.KeyMapping) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Each() error = %v, want stop", err)
	}

	if err := s.Rebuild([]models.KeyMapping{mapping(models.SourceKitsu, "5", 3, "z")}); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count() after rebuild = %d, want 1", n)
	}
	if _, ok, _ := s.Lookup("anilist#1"); ok {
		t.Error("old mapping survived rebuild")
	}
}

func TestStore_Persistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(config.KeyIndexConfig{Path: dir, SyncWrites: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put([]models.KeyMapping{mapping(models.SourceMyAnimeList, "5114", 4, "h")}); err != nil {
		t.Fatal(err)
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(config.KeyIndexConfig{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if m, ok, _ := reopened.Lookup("myanimelist#5114"); !ok || m.CanonicalID != 4 {
		t.Errorf("Lookup() after reopen = %+v, %v", m, ok)
	}
}

func TestStore_InMemoryAndClosed(t *testing.T) {
	t.Parallel()

	s, err := Open(config.KeyIndexConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC(in-memory) error = %v", err)
	}
	if err := s.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close error = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, _, err := s.Lookup("anilist#1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Lookup() after close error = %v, want ErrClosed", err)
	}

	if _, err := Open(config.KeyIndexConfig{}); err == nil {
		t.Error("Open() without path expected error")
	}
}
