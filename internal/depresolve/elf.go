package depresolve

import (
	"debug/elf"
	"os"
	"path/filepath"
)

// wellKnownDirs are searched, in order, for a DT_NEEDED entry that carries no
// directory component and has no matching DT_RUNPATH/DT_RPATH hit. This is a
// reduced model of the dynamic linker's search rules (no ld.so.cache, no
// LD_LIBRARY_PATH) sufficient for the libraries Antimony actually needs to
// place in the SOF; anything it misses still surfaces via the library glob
// pass (WithGlobs) a profile or feature can declare explicitly.
var wellKnownDirs = []string{
	"/lib",
	"/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/usr/lib/x86_64-linux-gnu",
}

// walkELF recursively resolves path's DT_NEEDED entries into absolute
// library paths, adding each to libs. visited prevents re-walking a library
// reached through two different parents.
func walkELF(path string, libs *orderedSet, visited map[string]struct{}) error {
	if _, done := visited[path]; done {
		return nil
	}
	visited[path] = struct{}{}

	f, err := elf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		// Statically linked or no dynamic section: nothing more to walk.
		return nil
	}
	runpath := dynStringFirst(f, elf.DT_RUNPATH)
	rpath := dynStringFirst(f, elf.DT_RPATH)
	searchDirs := append(splitSearchPath(runpath), splitSearchPath(rpath)...)
	searchDirs = append(searchDirs, knownLibRoots()...)
	searchDirs = append(searchDirs, wellKnownDirs...)

	for _, name := range needed {
		resolved, err := resolveLibrary(name, searchDirs)
		if err != nil {
			// A dependency the search rules can't place is not fatal to the
			// rest of the walk; the caller may still supply it via a glob.
			continue
		}
		libs.add(resolved)
		if err := walkELF(resolved, libs, visited); err != nil {
			continue
		}
	}
	return nil
}

func dynStringFirst(f *elf.File, tag elf.DynTag) string {
	vals, err := f.DynString(tag)
	if err != nil || len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func splitSearchPath(p string) []string {
	if p == "" {
		return nil
	}
	var dirs []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == ':' {
			if i > start {
				dirs = append(dirs, p[start:i])
			}
			start = i + 1
		}
	}
	return dirs
}

func resolveLibrary(name string, searchDirs []string) (string, error) {
	if filepath.IsAbs(name) {
		if exists(name) {
			return filepath.EvalSymlinks(name)
		}
		return "", os.ErrNotExist
	}
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, name)
		if exists(candidate) {
			return filepath.EvalSymlinks(candidate)
		}
	}
	return "", os.ErrNotExist
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
