package driver

import (
	"github.com/antimony-sandbox/antimony/internal/depresolve"
	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/sof"
	"github.com/antimony-sandbox/antimony/internal/which"
)

// resolveDependencies walks the target binary plus every extra binary the
// profile names (looked up through which.Which), unions their transitive
// libraries and directories, and folds in the profile's own library globs
// (spec.md §4.6 steps 4-5). Profile has no field for wholesale directories,
// so WithGlobs is given none. It is a pure reduction over which.Which and
// depresolve.Resolve/WithGlobs, so it never touches the filesystem beyond
// what those calls already do.
func resolveDependencies(targetPath string, p *profile.Profile) (depresolve.Result, error) {
	merged := depresolve.Result{}
	seenLib := map[string]bool{}
	seenBin := map[string]bool{}
	seenDir := map[string]bool{}

	fold := func(r depresolve.Result) {
		for _, l := range r.Libraries {
			if !seenLib[l] {
				seenLib[l] = true
				merged.Libraries = append(merged.Libraries, l)
			}
		}
		for _, b := range r.Binaries {
			if !seenBin[b] {
				seenBin[b] = true
				merged.Binaries = append(merged.Binaries, b)
			}
		}
		for _, d := range r.Directories {
			if !seenDir[d] {
				seenDir[d] = true
				merged.Directories = append(merged.Directories, d)
			}
		}
	}

	target, err := depresolve.Resolve(targetPath)
	if err != nil {
		return merged, err
	}
	fold(target)
	if !seenBin[targetPath] {
		seenBin[targetPath] = true
		merged.Binaries = append(merged.Binaries, targetPath)
	}

	for name := range p.Binaries {
		path := name
		if resolved, err := which.Which(name); err == nil {
			path = resolved
		}
		r, err := depresolve.Resolve(path)
		if err != nil {
			continue
		}
		fold(r)
		if !seenBin[path] {
			seenBin[path] = true
			merged.Binaries = append(merged.Binaries, path)
		}
	}

	var globs []string
	for l := range p.Libraries {
		globs = append(globs, l)
	}

	return depresolve.WithGlobs(merged, globs, nil)
}

// sofEntries converts a dependency resolution into the Entry list
// internal/sof needs to materialise the SOF.
func sofEntries(r depresolve.Result) []sof.Entry {
	entries := make([]sof.Entry, 0, len(r.Libraries)+len(r.Directories))
	for _, l := range r.Libraries {
		entries = append(entries, sof.Entry{Source: l})
	}
	for _, d := range r.Directories {
		entries = append(entries, sof.Entry{Source: d, Directory: true})
	}
	return entries
}
