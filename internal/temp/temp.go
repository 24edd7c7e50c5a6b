// Package temp creates filesystem objects (files, directories, symlinks)
// that are removed again once the caller is done with them, the way the
// original implementation's temp crate ties an Object's lifetime to a Temp
// guard. Go has no destructors, so the guard here is removed explicitly via
// Instance.Remove rather than on drop; callers are expected to defer it the
// same way they would defer f.Close().
package temp

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/antimony-sandbox/antimony/internal/privilege"
)

// Object is something that exists in the filesystem and can be created and
// removed as a unit.
type Object interface {
	Create() error
	Remove() error
	Dir() string
	Name() string
	Full() string
}

// File is a temporary regular file.
type File struct {
	parent, name string
}

// NewFile builds a File Object rooted at parent/name. It matches the
// constructor shape Builder.Create expects.
func NewFile(parent, name string) Object {
	return &File{parent: parent, name: name}
}

func (f *File) Create() error {
	if err := os.MkdirAll(f.parent, 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.Full(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return fh.Close()
}

func (f *File) Remove() error {
	err := os.Remove(f.Full())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *File) Dir() string  { return f.parent }
func (f *File) Name() string { return f.name }
func (f *File) Full() string { return filepath.Join(f.parent, f.name) }

// Directory is a temporary directory, removed recursively.
type Directory struct {
	parent, name string
}

// NewDirectory builds a Directory Object rooted at parent/name.
func NewDirectory(parent, name string) Object {
	return &Directory{parent: parent, name: name}
}

func (d *Directory) Create() error {
	return os.MkdirAll(d.Full(), 0o755)
}

func (d *Directory) Remove() error {
	return os.RemoveAll(d.Full())
}

func (d *Directory) Dir() string  { return d.parent }
func (d *Directory) Name() string { return d.name }
func (d *Directory) Full() string { return filepath.Join(d.parent, d.name) }

// unique returns a name not already present in dir, mirroring the random
// 8-byte hex instance name the original generates with fastrand.
func unique(dir string) string {
	for {
		var b [8]byte
		for i := range b {
			b[i] = byte(rand.Intn(256))
		}
		name := fmt.Sprintf("%x", b)
		if _, err := os.Lstat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
	}
}

// Instance is a created Object plus any further Objects associated to its
// lifetime (symlinks pointing at it, sibling scratch files). Remove tears
// down the whole tree, deepest associate first.
type Instance struct {
	object     Object
	associated []*Instance
	mode       privilege.Mode
}

// Associate ties another Instance's lifetime to this one: it is removed
// whenever this Instance is removed.
func (t *Instance) Associate(other *Instance) {
	t.associated = append(t.associated, other)
}

func (t *Instance) Name() string { return t.object.Name() }
func (t *Instance) Dir() string  { return t.object.Dir() }
func (t *Instance) Full() string { return t.object.Full() }

// Link creates a symlink at link pointing at the Instance's object, and
// associates the link itself so it is cleaned up together with the target.
func (t *Instance) Link(link string, mode privilege.Mode) error {
	parent, name := filepath.Split(link)
	if name == "" {
		return fmt.Errorf("temp: link %q has no file name", link)
	}
	target := t.object.Full()
	if err := privilege.RunAs(mode, func() error {
		return os.Symlink(target, link)
	}); err != nil {
		return err
	}
	t.Associate(&Instance{
		object: &File{parent: filepath.Clean(parent), name: name},
		mode:   mode,
	})
	return nil
}

// Remove deletes the Instance's object and every associated Instance,
// running each removal under the identity it was created with.
func (t *Instance) Remove() error {
	var firstErr error
	for _, a := range t.associated {
		if err := a.Remove(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	err := privilege.RunAs(t.mode, t.object.Remove)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Builder configures and creates a temporary Object.
type Builder struct {
	name      string
	dir       string
	extension string
	mode      privilege.Mode
	create    bool
}

// NewBuilder returns a Builder that creates its Object on Build by default.
func NewBuilder() *Builder {
	return &Builder{create: true}
}

// Owner sets the identity the Object is created and removed as. Defaults to
// privilege.Real, the zero Mode.
func (b *Builder) Owner(mode privilege.Mode) *Builder {
	b.mode = mode
	return b
}

// Within sets the directory the Object is created in. Defaults to os.TempDir.
func (b *Builder) Within(dir string) *Builder {
	b.dir = dir
	return b
}

// Name sets the Object's name. Defaults to a random unique name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Extension appends an extension to the Object's name.
func (b *Builder) Extension(ext string) *Builder {
	b.extension = ext
	return b
}

// Make controls whether Build actually creates the Object on disk. Disable
// it to reserve a name/path without touching the filesystem yet.
func (b *Builder) Make(create bool) *Builder {
	b.create = create
	return b
}

// Build constructs the Object via ctor and, unless Make(false) was called,
// creates it on disk under the configured identity.
func (b *Builder) Build(ctor func(parent, name string) Object) (*Instance, error) {
	parent := b.dir
	if parent == "" {
		parent = os.TempDir()
	}
	name := b.name
	if name == "" {
		name = unique(parent)
	}
	if b.extension != "" {
		name += "." + b.extension
	}

	mode := b.mode // zero value is Real, matching the default identity

	object := ctor(parent, name)
	if b.create {
		if err := privilege.RunAs(mode, object.Create); err != nil {
			return nil, fmt.Errorf("temp: create %s: %w", object.Full(), err)
		}
	}
	return &Instance{object: object, mode: mode}, nil
}
