package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("chunk not found")
	ErrInvalidStreamID = errors.New("invalid stream id")
	ErrInvalidIndex    = errors.New("invalid chunk index")
)

var streamIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const (
	chunkPrefix = "chunk_"
	chunkSuffix = ".webm"
)

// Chunk describes one stored segment on disk.
type Chunk struct {
	StreamID string
	Index    int
	Path     string
	Size     int64
	ModTime  time.Time
}

// SweepReport summarises an administrative sweep.
type SweepReport struct {
	Streams int   `json:"streams"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
	DryRun  bool  `json:"dry_run"`
}

// Store keeps segments as <dir>/<streamID>/chunk_<index>.webm.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("chunk dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) streamDir(streamID string) (string, error) {
	if !streamIDPattern.MatchString(streamID) {
		return "", ErrInvalidStreamID
	}
	return filepath.Join(s.dir, streamID), nil
}

func chunkName(index int) string {
	return chunkPrefix + strconv.Itoa(index) + chunkSuffix
}

// parseChunkName returns the index encoded in a segment file name.
func parseChunkName(name string) (int, bool) {
	if !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkSuffix) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, chunkPrefix), chunkSuffix))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Path returns where the segment lives, whether or not it exists.
func (s *Store) Path(streamID string, index int) (string, error) {
	if index < 0 {
		return "", ErrInvalidIndex
	}
	dir, err := s.streamDir(streamID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, chunkName(index)), nil
}

// Write stores a segment atomically: readers either see the previous file or the whole new one.
func (s *Store) Write(streamID string, index int, r io.Reader) (*Chunk, error) {
	final, err := s.Path(streamID, index)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stream dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	size, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to sync chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to close chunk: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to commit chunk: %w", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return nil, fmt.Errorf("failed to stat chunk: %w", err)
	}
	return &Chunk{StreamID: streamID, Index: index, Path: final, Size: size, ModTime: info.ModTime()}, nil
}

func (s *Store) Stat(streamID string, index int) (*Chunk, error) {
	path, err := s.Path(streamID, index)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat chunk: %w", err)
	}
	return &Chunk{StreamID: streamID, Index: index, Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *Store) Read(streamID string, index int) ([]byte, error) {
	path, err := s.Path(streamID, index)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}
	return data, nil
}

// Remove deletes one segment. A missing file is not an error.
func (s *Store) Remove(streamID string, index int) error {
	path, err := s.Path(streamID, index)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove chunk: %w", err)
	}
	return nil
}

// Indices lists the segment indices on disk in ascending order.
func (s *Store) Indices(streamID string) ([]int, error) {
	dir, err := s.streamDir(streamID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	indices := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := parseChunkName(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

// LatestIndex returns the highest index on disk, or nil when there is none.
func (s *Store) LatestIndex(streamID string) (*int, error) {
	indices, err := s.Indices(streamID)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}
	latest := indices[len(indices)-1]
	return &latest, nil
}

// PurgeAll removes every segment of a stream together with its directory.
func (s *Store) PurgeAll(streamID string) (int, error) {
	indices, err := s.Indices(streamID)
	if err != nil {
		return 0, err
	}
	dir, _ := s.streamDir(streamID)
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("failed to purge stream dir: %w", err)
	}
	if len(indices) > 0 {
		log.Printf("🧹 Purged %d chunks for stream %s", len(indices), streamID)
	}
	return len(indices), nil
}

// PurgeBefore removes segments with index < bound. Index 0 is the init segment and is kept.
func (s *Store) PurgeBefore(streamID string, bound int) (int, error) {
	indices, err := s.Indices(streamID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, idx := range indices {
		if idx >= bound {
			break
		}
		if idx == 0 {
			continue
		}
		if err := s.Remove(streamID, idx); err != nil {
			return removed, err
		}
		removed++
	}

	dir, _ := s.streamDir(streamID)
	removeIfEmpty(dir)
	return removed, nil
}

// SweepOlderThan removes files older than maxAge across every stream directory.
func (s *Store) SweepOlderThan(maxAge time.Duration, dryRun bool) (SweepReport, error) {
	cutoff := time.Now().Add(-maxAge)
	return s.sweep(dryRun, func(info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

// SweepAll removes every stored file.
func (s *Store) SweepAll(dryRun bool) (SweepReport, error) {
	return s.sweep(dryRun, func(os.FileInfo) bool { return true })
}

func (s *Store) sweep(dryRun bool, match func(os.FileInfo) bool) (SweepReport, error) {
	report := SweepReport{DryRun: dryRun}

	streams, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return report, fmt.Errorf("failed to list chunk dir: %w", err)
	}

	for _, stream := range streams {
		if !stream.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, stream.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return report, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		touched := false
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				// removed concurrently
				continue
			}
			if !match(info) {
				continue
			}
			if !dryRun {
				if err := os.Remove(filepath.Join(dir, f.Name())); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						continue
					}
					return report, fmt.Errorf("failed to remove %s: %w", f.Name(), err)
				}
			}
			touched = true
			report.Files++
			report.Bytes += info.Size()
		}

		if touched {
			report.Streams++
		}
		if !dryRun {
			removeIfEmpty(dir)
		}
	}

	return report, nil
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	os.Remove(dir)
}
