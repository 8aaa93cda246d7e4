package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source abstracts discovery of new log artifacts. The directory poller is
// the only implementation today; a remote-queue variant can slot in behind
// the same two operations without touching the runner.
type Source interface {
	// IterFiles returns the paths currently eligible for ingestion, in a
	// stable (lexical) order. The listing is a snapshot: files that appear
	// afterwards are picked up on the next pass.
	IterFiles(ctx context.Context) ([]string, error)
	// MarkProcessed excludes a file from future IterFiles calls and
	// returns its new path. It renames rather than deletes, is idempotent,
	// and never loses the file on failure.
	MarkProcessed(path string) (string, error)
}

// DirSource polls a directory for files matching Glob, skipping any whose
// name carries ProcessedPrefix.
//
// Two pollers racing on the same directory can both list a file before one
// renames it; the loser's rename fails and the file is simply logged as a
// per-file error. Run one poller per directory.
type DirSource struct {
	Dir             string
	Glob            string
	ProcessedPrefix string
}

// NewDirSource builds a DirSource from the configuration.
func NewDirSource(cfg *Config) *DirSource {
	return &DirSource{
		Dir:             cfg.LogsDir,
		Glob:            cfg.FileGlob,
		ProcessedPrefix: cfg.ProcessedPrefix,
	}
}

// IterFiles lists the eligible files. A missing directory is a
// configuration error for this pass; the caller logs it and retries on the
// next interval instead of crashing the loop.
func (s *DirSource) IterFiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("tracker: list %s: %w", s.Dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, s.ProcessedPrefix) {
			continue
		}
		ok, err := filepath.Match(s.Glob, name)
		if err != nil {
			return nil, fmt.Errorf("tracker: bad glob %q: %w", s.Glob, err)
		}
		if ok {
			files = append(files, filepath.Join(s.Dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// MarkProcessed renames path so its basename carries ProcessedPrefix.
// Collisions stack the prefix until a free name is found. Calling it again
// for an already-renamed file reports the existing target and succeeds.
func (s *DirSource) MarkProcessed(path string) (string, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	target := filepath.Join(dir, s.ProcessedPrefix+name)
	for {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(dir, s.ProcessedPrefix+filepath.Base(target))
	}

	if err := os.Rename(path, target); err != nil {
		// Idempotence: if the source is gone and a processed twin exists,
		// a previous call already did the work.
		if os.IsNotExist(err) {
			prev := filepath.Join(dir, s.ProcessedPrefix+name)
			if _, statErr := os.Stat(prev); statErr == nil {
				return prev, nil
			}
		}
		return "", fmt.Errorf("tracker: mark processed %s: %w", path, err)
	}
	return target, nil
}
