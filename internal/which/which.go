// Package which resolves executable names against $PATH the way the
// original implementation's which crate does: search every directory
// concurrently and return whichever hit lands first, rather than the
// strictly first-in-PATH-order match. The original justifies this with
// rayon's par_iter().find_map_any(); this port uses one goroutine per PATH
// entry fanning into a buffered result channel for the same effect.
package which

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when name resolves against no directory in PATH.
var ErrNotFound = errors.New("which: executable not found")

var (
	cache sync.Map // string -> string

	// pathOnce/pathDirs memoize the parsed PATH the same way the original
	// caches a filtered PATH static, dropping ~/.local/bin so Antimony
	// never resolves back to its own wrapper scripts on a PATH a hook or
	// profile put ahead of the system directories.
	pathOnce sync.Once
	pathDirs []string
)

func directories() []string {
	pathOnce.Do(func() {
		home, _ := os.UserHomeDir()
		localBin := filepath.Join(home, ".local", "bin")
		for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
			if dir == "" || dir == localBin {
				continue
			}
			pathDirs = append(pathDirs, dir)
		}
	})
	return pathDirs
}

// Which resolves name to an absolute path. If name already contains a slash
// it is used as given (after checking it is executable), matching the usual
// shell convention that a path with a separator bypasses PATH search.
func Which(name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		if isExecutable(name) {
			return name, nil
		}
		return "", ErrNotFound
	}

	if v, ok := cache.Load(name); ok {
		return v.(string), nil
	}

	dirs := directories()
	type result struct {
		path string
		ok   bool
	}
	found := make(chan result, len(dirs))
	var wg sync.WaitGroup
	for _, dir := range dirs {
		wg.Add(1)
		go func(dir string) {
			defer wg.Done()
			candidate := filepath.Join(dir, name)
			if isExecutable(candidate) {
				select {
				case found <- result{candidate, true}:
				default:
				}
			}
		}(dir)
	}
	go func() {
		wg.Wait()
		close(found)
	}()

	for r := range found {
		if r.ok {
			cache.Store(name, r.path)
			return r.path, nil
		}
	}
	return "", ErrNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// InvalidateAll drops every cached resolution, for callers that mutate PATH
// or the filesystem between resolutions (tests, profile reloads).
func InvalidateAll() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
	pathOnce = sync.Once{}
	pathDirs = nil
}
