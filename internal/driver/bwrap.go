// bwrap.go builds the bubblewrap argv for a resolved profile plus its
// fabricated SOF manifest. Each builder here is a pure function over its
// inputs so it can be tested without ever exec'ing bwrap, matching
// SPEC_FULL.md §8's requirement that argv construction stay independently
// testable.
package driver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/antimony-sandbox/antimony/internal/profile"
	"github.com/antimony-sandbox/antimony/internal/sof"
)

// BuildArgs assembles the bwrap invocation for p, using manifest for the
// SOF's lib bind, homeDir for the sandbox's home mount (empty if p has no
// home), and appending the target's own argv (path plus caller-supplied
// arguments) last.
// staged maps a Direct file's destination path to the on-disk temp file the
// driver has already written that file's literal content into, since bwrap
// has no portable way to bind literal content without a source file.
// extraFlags carries driver-assigned flags that depend on the spawn itself
// rather than the profile (e.g. "--seccomp 3" once a filter fd's number is
// known), appended after the profile's own sandbox_args.
func BuildArgs(p *profile.Profile, manifest *sof.Manifest, homeDir string, staged map[string]string, extraFlags []string, targetArgv []string) []string {
	var argv []string

	argv = append(argv, namespaceArgs(p.Namespaces)...)
	argv = append(argv, "--proc", "/proc", "--dev", "/dev")
	argv = append(argv, sofArgs(manifest)...)
	argv = append(argv, fileArgs(p.Files, staged)...)
	argv = append(argv, homeArgs(p.Home, homeDir)...)
	argv = append(argv, deviceArgs(p.Devices)...)
	argv = append(argv, envArgs(p.Environment)...)
	argv = append(argv, p.SandboxArgs...)
	argv = append(argv, extraFlags...)

	if p.NewPrivileges == nil || !*p.NewPrivileges {
		argv = append(argv, "--new-session")
	}

	argv = append(argv, "--")
	argv = append(argv, p.Arguments...)
	argv = append(argv, targetArgv...)
	return argv
}

func namespaceArgs(ns profile.NamespaceSet) []string {
	if len(ns) == 0 {
		return nil
	}
	if _, all := ns[profile.NamespaceAll]; all {
		return []string{"--unshare-all"}
	}
	flags := map[profile.Namespace]string{
		profile.NamespaceUser:   "--unshare-user",
		profile.NamespaceIPC:    "--unshare-ipc",
		profile.NamespacePID:    "--unshare-pid",
		profile.NamespaceNet:    "--unshare-net",
		profile.NamespaceUTS:    "--unshare-uts",
		profile.NamespaceCGroup: "--unshare-cgroup",
	}
	var argv []string
	for n := range ns {
		if flag, ok := flags[n]; ok {
			argv = append(argv, flag)
		}
	}
	return argv
}

// sofArgs binds the fabricated SOF's library directory over /usr/lib and
// symlinks /lib, /lib64 to it, then ro-binds every directory the resolver
// decided to expose wholesale (spec.md §4.7's "wildcard" directories).
func sofArgs(manifest *sof.Manifest) []string {
	if manifest == nil {
		return nil
	}
	libDir := sof.LibDir(manifest.Profile, manifest.Hash)
	argv := []string{
		"--ro-bind", libDir, "/usr/lib",
		"--symlink", "/usr/lib", "/lib",
		"--symlink", "/usr/lib", "/lib64",
	}
	for _, dir := range manifest.Directories {
		argv = append(argv, "--ro-bind", dir, dir)
	}
	return argv
}

func fileArgs(files *profile.Files, staged map[string]string) []string {
	if files == nil {
		return nil
	}
	var argv []string
	for _, mode := range profile.FileModes {
		for path := range files.User[mode] {
			argv = append(argv, mode.Bind(true), path, path)
		}
		for path := range files.Platform[mode] {
			argv = append(argv, mode.Bind(true), path, path)
		}
		for path := range files.Resources[mode] {
			argv = append(argv, mode.Bind(true), path, path)
		}
	}
	for mode, entries := range files.Direct {
		for dest := range entries {
			source, ok := staged[dest]
			if !ok {
				continue
			}
			argv = append(argv, mode.Bind(false), source, dest)
		}
	}
	return argv
}

// StageDirectFiles writes every Direct file's literal content to its own
// temp file under dir, so BuildArgs has something to bind from, and returns
// the dest -> temp-file-path map BuildArgs expects.
func StageDirectFiles(files *profile.Files, dir string) (map[string]string, error) {
	staged := make(map[string]string)
	if files == nil {
		return staged, nil
	}
	i := 0
	for mode, entries := range files.Direct {
		for dest, content := range entries {
			i++
			tmp := filepath.Join(dir, fmt.Sprintf("direct-%d", i))
			if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("stage direct file %s: %w", dest, err)
			}
			var perm uint32
			if _, err := fmt.Sscanf(mode.Chmod(), "%o", &perm); err != nil {
				return nil, fmt.Errorf("parse mode for staged file %s: %w", dest, err)
			}
			if err := os.Chmod(tmp, os.FileMode(perm)); err != nil {
				return nil, fmt.Errorf("chmod staged file %s: %w", dest, err)
			}
			staged[dest] = tmp
		}
	}
	return staged, nil
}

func homeArgs(home *profile.Home, homeDir string) []string {
	if home == nil || home.Policy == nil || *home.Policy == profile.HomeNone || homeDir == "" {
		return []string{"--tmpfs", "/home"}
	}
	mount := home.MountPath()
	switch *home.Policy {
	case profile.HomeReadOnly:
		return []string{"--ro-bind", homeDir, mount}
	case profile.HomeOverlay:
		return []string{"--overlay-src", homeDir, "--tmp-overlay", mount}
	default: // HomeEnabled
		return []string{"--bind", homeDir, mount}
	}
}

func deviceArgs(devices profile.StringSet) []string {
	var argv []string
	for d := range devices {
		argv = append(argv, "--dev-bind", d, d)
	}
	return argv
}

func envArgs(env map[string]string) []string {
	var argv []string
	for k, v := range env {
		argv = append(argv, "--setenv", k, v)
	}
	return argv
}
