package httpd

import (
	"io/fs"
	"os"
)

// FileSource reads a file by name for the /files/ route.
type FileSource interface {
	ReadFile(name string) ([]byte, error)
}

// DirSource reads files from beneath one directory. Names that would
// resolve outside it, through ".." or symlinks, fail to open.
type DirSource struct {
	root *os.Root
}

func OpenDir(dir string) (*DirSource, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &DirSource{root: root}, nil
}

func (d *DirSource) ReadFile(name string) ([]byte, error) {
	return d.root.ReadFile(name)
}

// Name is the directory d was opened on.
func (d *DirSource) Name() string { return d.root.Name() }

func (d *DirSource) Close() error { return d.root.Close() }

// FSSource adapts an fs.FS, such as an embed.FS or fstest.MapFS.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(s.FS, name)
}
