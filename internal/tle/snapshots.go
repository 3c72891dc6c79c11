package tle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Snapshots archives raw element text on disk, one file per fetch, named
// tle_<key>_<unix>.txt. The newest archive for a key is the provider's last
// resort when every endpoint fails.
type Snapshots struct {
	dir      string
	maxFiles int
}

// NewSnapshots creates a store in dir keeping at most maxFiles per key.
func NewSnapshots(dir string, maxFiles int) *Snapshots {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Snapshots{dir: dir, maxFiles: maxFiles}
}

// Write saves data for key and prunes that key's oldest files.
func (s *Snapshots) Write(key string, data []byte, ts time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	name := fmt.Sprintf("tle_%s_%d.txt", fileKey(key), ts.Unix())
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return s.prune(key)
}

// LoadLatest returns the newest snapshot for key, its file name and timestamp.
func (s *Snapshots) LoadLatest(key string) ([]byte, string, time.Time, error) {
	files, err := s.list(key)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if len(files) == 0 {
		return nil, "", time.Time{}, fmt.Errorf("no snapshot for %s", key)
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, latest.name))
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, latest.name, latest.ts, nil
}

type snapshotFile struct {
	name string
	ts   time.Time
}

// fileKey makes a cache key safe for a file name: "catnr:33591" -> "catnr-33591".
func fileKey(key string) string {
	return strings.NewReplacer(":", "-", "/", "-", " ", "-").Replace(strings.ToLower(key))
}

func (s *Snapshots) list(key string) ([]snapshotFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	prefix := "tle_" + fileKey(key) + "_"
	var files []snapshotFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".txt") {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".txt"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{name: name, ts: time.Unix(unix, 0).UTC()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ts.Before(files[j].ts) })
	return files, nil
}

func (s *Snapshots) prune(key string) error {
	files, err := s.list(key)
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", f.name, err)
		}
	}
	return nil
}
