package installer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LinkMode — как пакет попал в каталог команд.
type LinkMode int

const (
	LinkSymlinked LinkMode = iota
	LinkCopied
)

func (m LinkMode) String() string {
	if m == LinkCopied {
		return "copied"
	}
	return "symlinked"
}

// LinkResult — итог связывания. SymlinkErr заполнен при LinkCopied.
type LinkResult struct {
	Mode       LinkMode
	SymlinkErr error
}

// Linker делает каталог пакета source видимым по пути target.
type Linker interface {
	Link(source, target string) (LinkResult, error)
}

// FallbackLinker создаёт относительную символическую ссылку,
// а если это невозможно — рекурсивно копирует source.
type FallbackLinker struct {
	symlink func(oldname, newname string) error
}

// NewFallbackLinker создаёт FallbackLinker.
func NewFallbackLinker() *FallbackLinker {
	return &FallbackLinker{symlink: os.Symlink}
}

// Link реализует Linker.
func (l *FallbackLinker) Link(source, target string) (LinkResult, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return LinkResult{}, fmt.Errorf("создание %s: %w", filepath.Dir(target), err)
	}

	rel, err := filepath.Rel(filepath.Dir(target), source)
	if err != nil {
		rel = source
	}
	symErr := l.symlink(rel, target)
	if symErr == nil {
		return LinkResult{Mode: LinkSymlinked}, nil
	}

	// частично созданная копия не должна маскировать ошибку
	if err := copyTree(source, target); err != nil {
		_ = os.RemoveAll(target)
		return LinkResult{}, fmt.Errorf("symlink failed (%v), copy failed: %w", symErr, err)
	}
	return LinkResult{Mode: LinkCopied, SymlinkErr: symErr}, nil
}

func copyTree(source, target string) error {
	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
