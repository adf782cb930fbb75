// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/animedex/internal/models"
)

const fileSuffix = ".gob.gz"

// ErrChecksumMismatch is returned by Load when the decoded factors do not
// hash to the checksum in the file header.
var ErrChecksumMismatch = errors.New("model checksum mismatch")

// ModelMetadata is the header of a model file. Name, Version, SavedAt,
// Checksum and SizeBytes are filled in by Save; the training figures come
// from the caller and mirror the warehouse's model_versions row.
type ModelMetadata struct {
	Name               string    `json:"name"`
	Version            int       `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	SavedAt            time.Time `json:"saved_at"`
	CatalogSnapshot    int64     `json:"catalog_snapshot"`
	InteractionCount   int       `json:"interaction_count"`
	ItemCount          int       `json:"item_count"`
	UserCount          int       `json:"user_count"`
	Checksum           string    `json:"checksum"` // hex SHA-256 of the uncompressed state
	SizeBytes          int64     `json:"size_bytes"`
	TrainingDurationMS int64     `json:"training_duration_ms"`
}

// modelFile is what one {name}_v{version}.gob.gz file holds.
type modelFile struct {
	Header ModelMetadata
	State  []byte // gzip of the gob-encoded model
}

// Store keeps collaborative model versions under one directory.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// versions holds the version numbers on disk per model name, ascending.
	versions map[string][]int
}

// NewStore opens the model directory, creating it when missing, and picks up
// the versions already written by earlier runs.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}

	s := &Store{baseDir: baseDir, versions: make(map[string][]int)}
	if err := s.indexDir(); err != nil {
		return nil, fmt.Errorf("index model directory: %w", err)
	}
	return s, nil
}

func (s *Store) indexDir() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, version, ok := splitFilename(entry.Name()); ok {
			s.versions[name] = append(s.versions[name], version)
		}
	}
	for name := range s.versions {
		sort.Ints(s.versions[name])
	}
	return nil
}

// splitFilename turns "bpr_v12.gob.gz" into ("bpr", 12).
func splitFilename(filename string) (name string, version int, ok bool) {
	base, found := strings.CutSuffix(filename, fileSuffix)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndex(base, "_v")
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(base[i+2:])
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return base[:i], v, true
}

// encodeState gob-encodes and compresses state, returning the compressed
// bytes and the checksum of the uncompressed encoding.
func encodeState(state any) ([]byte, string, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(state); err != nil {
		return nil, "", fmt.Errorf("encode model state: %w", err)
	}
	sum := sha256.Sum256(raw.Bytes())

	var packed bytes.Buffer
	zw := gzip.NewWriter(&packed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, "", fmt.Errorf("compress model state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress model state: %w", err)
	}
	return packed.Bytes(), hex.EncodeToString(sum[:]), nil
}

// decodeState reverses encodeState into target after checking the checksum.
func decodeState(f *modelFile, target any) error {
	zr, err := gzip.NewReader(bytes.NewReader(f.State))
	if err != nil {
		return fmt.Errorf("decompress model state: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only

	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("decompress model state: %w", err)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != f.Header.Checksum {
		return fmt.Errorf("%w: %s v%d has %s, header says %s",
			ErrChecksumMismatch, f.Header.Name, f.Header.Version, got, f.Header.Checksum)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return fmt.Errorf("decode model state: %w", err)
	}
	return nil
}

// Save writes state as version of name. The file appears atomically; saving
// a version that exists overwrites it.
//
//nolint:gocritic // meta is a value so Save can stamp it without touching the caller's copy
func (s *Store) Save(ctx context.Context, name string, version int, state any, meta ModelMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	packed, checksum, err := encodeState(state)
	if err != nil {
		return err
	}
	meta.Name = name
	meta.Version = version
	meta.Checksum = checksum
	meta.SizeBytes = int64(len(packed))
	meta.SavedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after the rename

	if err := gob.NewEncoder(tmp).Encode(modelFile{Header: meta, State: packed}); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.modelPath(name, version)); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}

	if !containsVersion(s.versions[name], version) {
		s.versions[name] = append(s.versions[name], version)
		sort.Ints(s.versions[name])
	}
	return nil
}

// Load decodes version of name into target and returns its header. Version 0
// means the newest file on disk.
func (s *Store) Load(ctx context.Context, name string, version int, target any) (*ModelMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		vs := s.versions[name]
		if len(vs) == 0 {
			return nil, fmt.Errorf("model %s: %w", name, models.ErrNotFound)
		}
		version = vs[len(vs)-1]
	}

	f, err := s.readFile(name, version)
	if err != nil {
		return nil, err
	}
	if err := decodeState(f, target); err != nil {
		return nil, err
	}
	return &f.Header, nil
}

func (s *Store) readFile(name string, version int) (*modelFile, error) {
	fh, err := os.Open(s.modelPath(name, version))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("model %s v%d: %w", name, version, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer fh.Close() //nolint:errcheck // read-only

	var f modelFile
	if err := gob.NewDecoder(fh).Decode(&f); err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return &f, nil
}

// GetLatestVersion returns the newest stored version of name.
func (s *Store) GetLatestVersion(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[name]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Versions returns the stored versions of name in ascending order.
func (s *Store) Versions(name string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.versions[name]...)
}

// ListModels returns the header of every model file ordered by name and
// version. Files that fail to decode are left out.
func (s *Store) ListModels(ctx context.Context) ([]ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ModelMetadata
	for _, name := range names {
		for _, v := range s.versions[name] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f, err := s.readFile(name, v)
			if err != nil {
				continue
			}
			out = append(out, f.Header)
		}
	}
	return out, nil
}

// Delete removes the file of one version.
func (s *Store) Delete(ctx context.Context, name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.modelPath(name, version)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("model %s v%d: %w", name, version, models.ErrNotFound)
		}
		return fmt.Errorf("delete model: %w", err)
	}
	s.versions[name] = removeVersion(s.versions[name], version)
	return nil
}

// Prune deletes the files of name beyond the newest keepVersions. Versions
// in pinned, such as the one the warehouse marks active, are never deleted.
// It returns the versions it removed.
func (s *Store) Prune(ctx context.Context, name string, keepVersions int, pinned ...int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepVersions < 1 {
		keepVersions = 1
	}
	vs := s.versions[name]
	if len(vs) <= keepVersions {
		return nil, nil
	}

	candidates := append([]int(nil), vs[:len(vs)-keepVersions]...)
	var removed []int
	for _, v := range candidates {
		if containsVersion(pinned, v) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.Remove(s.modelPath(name, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("prune model %s v%d: %w", name, v, err)
		}
		s.versions[name] = removeVersion(s.versions[name], v)
		removed = append(removed, v)
	}
	return removed, nil
}

func (s *Store) modelPath(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, fileSuffix))
}

func containsVersion(vs []int, v int) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

func removeVersion(vs []int, v int) []int {
	out := vs[:0]
	for _, x := range vs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
