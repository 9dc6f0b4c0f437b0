package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxScanDepth ограничивает обход через символические ссылки (циклы).
const maxScanDepth = 16

// CommandMeta — метаданные файла команды.
type CommandMeta struct {
	Description string
	Author      string
	Version     string
	Tags        []string
}

// LocalCommand — файл команды в .claude/commands.
type LocalCommand struct {
	// Name — путь без расширения, "/" заменён на ":" (tools/git.md → tools:git)
	Name string
	Path string
	// Installed — файл принадлежит пакету из реестра
	Installed bool
	CommandMeta
}

type frontMatter struct {
	Description string    `yaml:"description"`
	Author      string    `yaml:"author"`
	Version     yaml.Node `yaml:"version"`
	Tags        []string  `yaml:"tags"`
}

// ParseCommand извлекает метаданные из YAML front matter. Без него
// описанием служит первая строка-заголовок. Некорректный YAML игнорируется.
func ParseCommand(content string) CommandMeta {
	var meta CommandMeta
	body := content

	if fm, rest, ok := splitFrontMatter(content); ok {
		body = rest
		var parsed frontMatter
		if err := yaml.Unmarshal([]byte(fm), &parsed); err == nil {
			meta.Description = strings.TrimSpace(parsed.Description)
			meta.Author = parsed.Author
			meta.Version = parsed.Version.Value
			meta.Tags = parsed.Tags
		}
	}

	if meta.Description == "" {
		first, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
		first = strings.TrimSpace(first)
		if strings.HasPrefix(first, "#") {
			meta.Description = strings.TrimSpace(strings.TrimLeft(first, "#"))
		}
	}
	return meta
}

func splitFrontMatter(content string) (fm, rest string, ok bool) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return "", content, false
	}
	after := content[len("---\n"):]
	end := strings.Index(after, "\n---")
	if end < 0 {
		return "", content, false
	}
	rest = after[end+len("\n---"):]
	rest = strings.TrimPrefix(rest, "\n")
	return after[:end], rest, true
}

// ScanCommands обходит .claude/commands, включая пакеты за символическими
// ссылками. Результат отсортирован по имени.
func (p *Project) ScanCommands() ([]LocalCommand, error) {
	inst, err := p.ReadInstalled()
	if err != nil {
		return nil, err
	}

	var out []LocalCommand
	if err := scanDir(p.CommandsDir(), "", 0, inst.Packages, &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func scanDir(base, rel string, depth int, installed map[string]InstalledPackage, out *[]LocalCommand) error {
	if depth > maxScanDepth {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(base, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}

	for _, e := range entries {
		relPath := path.Join(rel, e.Name())
		full := filepath.Join(base, filepath.FromSlash(relPath))

		info, err := os.Stat(full)
		if err != nil {
			// битая ссылка
			continue
		}
		if info.IsDir() {
			if err := scanDir(base, relPath, depth+1, installed, out); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(e.Name(), ".md") {
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("чтение %s: %w", relPath, err)
		}
		top, _, _ := strings.Cut(relPath, "/")
		_, isInstalled := installed[top]
		*out = append(*out, LocalCommand{
			Name:        strings.ReplaceAll(strings.TrimSuffix(relPath, ".md"), "/", ":"),
			Path:        full,
			Installed:   isInstalled,
			CommandMeta: ParseCommand(string(data)),
		})
	}
	return nil
}

// SourceFile — файл для публикации.
type SourceFile struct {
	Filename string
	Content  string
}

// CollectSources собирает собственные *.md из .claude/commands для публикации.
// Символические ссылки и каталоги установленных пакетов пропускаются.
func (p *Project) CollectSources() ([]SourceFile, error) {
	inst, err := p.ReadInstalled()
	if err != nil {
		return nil, err
	}

	root := p.CommandsDir()
	var files []SourceFile
	err = filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if full == root {
			return nil
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			if _, ok := inst.Packages[rel]; ok {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") {
			return nil
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("чтение %s: %w", rel, err)
		}
		files = append(files, SourceFile{Filename: rel, Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
