// Package depresolve extracts the closed set of libraries and binaries a
// target executable needs at runtime. It mirrors src/fab/lib.rs and
// src/fab/bin.rs: classify the file by magic, walk ELF DT_NEEDED entries (or
// tokenise a shell script for literal paths and bare commands), then fold in
// user/feature library globs and wholesale directories. Every per-file result
// is memoized by (path, mtime, size) fingerprint, since the same library is
// asked about over and over across profiles sharing a binary.
package depresolve

import (
	"bufio"
	"os"
	"sync"
)

// elfMagic is the four leading bytes of every ELF file.
var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// LibRoots are the library search directories probed for wildcard expansion
// and as a last resort for unresolved DT_NEEDED entries. Only the roots that
// exist (and are not themselves a symlink into another root, e.g. lib64 ->
// lib on a merged-usr system) are kept; knownLibRoots populates this once
// per process, on first use.
var LibRoots []string

var libRootsOnce sync.Once

func knownLibRoots() []string {
	libRootsOnce.Do(func() {
		candidates := []string{
			"/usr/lib",
			"/usr/lib64",
			"/usr/lib32",
			"/usr/lib/x86_64-linux-gnu",
		}
		for _, root := range candidates {
			info, err := os.Lstat(root)
			if err != nil {
				continue
			}
			if info.Mode()&os.ModeSymlink != 0 {
				continue
			}
			LibRoots = append(LibRoots, root)
		}
	})
	return LibRoots
}

// Result is the closed dependency set for one target.
type Result struct {
	// Libraries are absolute paths to shared objects, in first-seen order.
	Libraries []string
	// Binaries are absolute paths to other executables this target's
	// shell script invoked (empty for ELF targets).
	Binaries []string
	// Directories are feature-declared library directories to be bound
	// wholesale rather than enumerated (e.g. /usr/lib/qt6).
	Directories []string
}

type orderedSet struct {
	order []string
	seen  map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

// fingerprint is a per-file memoization key: a cheap substitute for hashing
// file content, invalidated whenever the file's mtime or size changes.
type fingerprint struct {
	path    string
	size    int64
	modTime int64
}

var cache sync.Map // fingerprint -> Result

func fingerprintOf(path string) (fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, err
	}
	return fingerprint{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}, nil
}

// Resolve produces the closed dependency set for path, which must already be
// an absolute, existing file (callers resolve bare names through which.Which
// first). Results are cached per fingerprint; InvalidateAll drops the cache.
func Resolve(path string) (Result, error) {
	fp, err := fingerprintOf(path)
	if err != nil {
		return Result{}, err
	}
	if v, ok := cache.Load(fp); ok {
		return v.(Result), nil
	}

	kind, err := classify(path)
	if err != nil {
		return Result{}, err
	}

	var result Result
	switch kind {
	case kindELF:
		libs := newOrderedSet()
		if err := walkELF(path, libs, make(map[string]struct{})); err != nil {
			return Result{}, err
		}
		result.Libraries = libs.order
	case kindShell:
		bins, libs, err := resolveShell(path)
		if err != nil {
			return Result{}, err
		}
		result.Binaries = bins
		result.Libraries = libs
	default:
		// Data file: no further dependencies.
	}

	cache.Store(fp, result)
	return result, nil
}

type fileKind int

const (
	kindData fileKind = iota
	kindELF
	kindShell
)

func classify(path string) (fileKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return kindData, err
	}
	defer f.Close()

	var magic [4]byte
	n, _ := f.Read(magic[:])
	if n == 4 && magic == elfMagic {
		return kindELF, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return kindData, err
	}
	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		line := scanner.Text()
		if len(line) >= 2 && line[0] == '#' && line[1] == '!' {
			return kindShell, nil
		}
	}
	return kindData, nil
}

// WithGlobs applies library glob patterns (e.g. "libOkular6Core*") against
// every known library root and unions any match into result.Libraries. It
// also accepts feature-declared directories to record wholesale, bypassing
// enumeration entirely.
func WithGlobs(result Result, patterns []string, wholesaleDirs []string) (Result, error) {
	libs := newOrderedSet()
	for _, l := range result.Libraries {
		libs.add(l)
	}
	for _, pattern := range patterns {
		matches, err := expandGlob(pattern)
		if err != nil {
			return result, err
		}
		for _, m := range matches {
			libs.add(m)
		}
	}
	result.Libraries = libs.order

	dirs := newOrderedSet()
	for _, d := range result.Directories {
		dirs.add(d)
	}
	for _, d := range wholesaleDirs {
		dirs.add(d)
	}
	result.Directories = dirs.order
	return result, nil
}

// InvalidateAll drops every memoized fingerprint->Result entry, for refresh.
func InvalidateAll() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
	libRootsOnce = sync.Once{}
	LibRoots = nil
}
