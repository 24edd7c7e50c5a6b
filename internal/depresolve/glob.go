package depresolve

import (
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// expandGlob matches pattern against the top level of every known library
// root (no recursion: a wildcard like "libOkular6Core*" is meant to catch
// sibling .so files, not walk subdirectories) and returns every absolute
// match, across every root, in root order.
func expandGlob(pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		dir, base := filepath.Split(pattern)
		return matchDir(dir, base)
	}

	var matches []string
	for _, root := range knownLibRoots() {
		found, err := matchDir(root+string(filepath.Separator), pattern)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}
	return matches, nil
}

func matchDir(dir, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if g.Match(e.Name()) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	return matches, nil
}
