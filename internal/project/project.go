// Пакет project — состояние проекта-потребителя в каталоге .claude:
// дескриптор ccm.json, метаданные установленных пакетов, локальные команды.
// Каждая операция читает файлы заново и перезаписывает их целиком.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	claudeDirName    = ".claude"
	commandsDirName  = "commands"
	installedDirName = "installed"
	descriptorName   = "ccm.json"
	metadataName     = ".ccm-metadata.json"
	gitignoreName    = ".gitignore"

	// tmpPattern — временные файлы атомарной записи (игнорируются git).
	tmpPattern = "*.ccm-tmp"

	DefaultName    = "consumer-project"
	DefaultVersion = "1.0.0"
)

const gitignoreContent = `# CCM installed commands
installed/
*.ccm-tmp

# Keep user commands
!commands/
!ccm.json
`

// Descriptor — содержимое .claude/ccm.json.
type Descriptor struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Repository      string            `json:"repository,omitempty"`
	License         string            `json:"license,omitempty"`
	Homepage        string            `json:"homepage,omitempty"`
	Category        string            `json:"category,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// AllDependencies — объединение dependencies и devDependencies.
// При совпадении имени побеждает devDependencies.
func (d *Descriptor) AllDependencies() map[string]string {
	all := make(map[string]string, len(d.Dependencies)+len(d.DevDependencies))
	for name, spec := range d.Dependencies {
		all[name] = spec
	}
	for name, spec := range d.DevDependencies {
		all[name] = spec
	}
	return all
}

// SetDependency записывает спецификацию версии. Пакет, уже объявленный
// в devDependencies, остаётся там.
func (d *Descriptor) SetDependency(name, spec string) {
	if _, ok := d.DevDependencies[name]; ok {
		d.DevDependencies[name] = spec
		return
	}
	if d.Dependencies == nil {
		d.Dependencies = map[string]string{}
	}
	d.Dependencies[name] = spec
}

// RemoveDependency удаляет пакет из обоих списков.
func (d *Descriptor) RemoveDependency(name string) {
	delete(d.Dependencies, name)
	delete(d.DevDependencies, name)
}

// InstalledPackage — запись об установленном пакете.
type InstalledPackage struct {
	Version       string    `json:"version"`
	Description   string    `json:"description"`
	Tags          []string  `json:"tags"`
	InstalledAt   time.Time `json:"installedAt"`
	Files         []string  `json:"files"`
	InstalledPath string    `json:"installedPath"`
}

// Installed — содержимое .claude/installed/.ccm-metadata.json.
type Installed struct {
	Version  string                      `json:"version,omitempty"`
	Created  *time.Time                  `json:"created,omitempty"`
	Packages map[string]InstalledPackage `json:"installedPackages"`
}

// Project — корень проекта-потребителя.
type Project struct {
	root string
}

// New создаёт Project для каталога root.
func New(root string) *Project {
	return &Project{root: root}
}

func (p *Project) Root() string           { return p.root }
func (p *Project) ClaudeDir() string      { return filepath.Join(p.root, claudeDirName) }
func (p *Project) CommandsDir() string    { return filepath.Join(p.ClaudeDir(), commandsDirName) }
func (p *Project) InstalledDir() string   { return filepath.Join(p.ClaudeDir(), installedDirName) }
func (p *Project) DescriptorPath() string { return filepath.Join(p.ClaudeDir(), descriptorName) }
func (p *Project) MetadataPath() string   { return filepath.Join(p.InstalledDir(), metadataName) }

// CommandPath — путь пакета в каталоге команд (ссылка или копия).
func (p *Project) CommandPath(name string) string {
	return filepath.Join(p.CommandsDir(), filepath.FromSlash(name))
}

// MirrorPath — путь пакета в каталоге установленных.
func (p *Project) MirrorPath(name string) string {
	return filepath.Join(p.InstalledDir(), filepath.FromSlash(name))
}

// DescriptorExists — есть ли ccm.json.
func (p *Project) DescriptorExists() bool {
	_, err := os.Stat(p.DescriptorPath())
	return err == nil
}

// ReadDescriptor читает ccm.json. Если файла нет, создаёт и возвращает
// дескриптор по умолчанию.
func (p *Project) ReadDescriptor() (*Descriptor, error) {
	data, err := os.ReadFile(p.DescriptorPath())
	if errors.Is(err, os.ErrNotExist) {
		d := defaultDescriptor(DefaultName)
		if err := p.WriteDescriptor(d); err != nil {
			return nil, err
		}
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", descriptorName, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("некорректный %s: %w", descriptorName, err)
	}
	if d.Dependencies == nil {
		d.Dependencies = map[string]string{}
	}
	return &d, nil
}

// WriteDescriptor атомарно перезаписывает ccm.json.
func (p *Project) WriteDescriptor(d *Descriptor) error {
	if d.Dependencies == nil {
		d.Dependencies = map[string]string{}
	}
	return writeJSONAtomic(p.DescriptorPath(), d)
}

// ReadInstalled читает метаданные установленных пакетов.
// Отсутствующий или повреждённый файл — пустой набор.
func (p *Project) ReadInstalled() (*Installed, error) {
	inst := &Installed{Packages: map[string]InstalledPackage{}}
	data, err := os.ReadFile(p.MetadataPath())
	if errors.Is(err, os.ErrNotExist) {
		return inst, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", metadataName, err)
	}
	if err := json.Unmarshal(data, inst); err != nil {
		return &Installed{Packages: map[string]InstalledPackage{}}, nil
	}
	if inst.Packages == nil {
		inst.Packages = map[string]InstalledPackage{}
	}
	return inst, nil
}

// WriteInstalled атомарно перезаписывает метаданные.
func (p *Project) WriteInstalled(inst *Installed) error {
	if inst.Packages == nil {
		inst.Packages = map[string]InstalledPackage{}
	}
	return writeJSONAtomic(p.MetadataPath(), inst)
}

// EnsureDirs создаёт .claude/commands и .claude/installed.
func (p *Project) EnsureDirs() error {
	for _, dir := range []string{p.CommandsDir(), p.InstalledDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("создание %s: %w", dir, err)
		}
	}
	return nil
}

// Init создаёт структуру проекта. Существующие файлы не трогает.
// Возвращает пути созданных файлов и каталогов относительно корня.
func (p *Project) Init(name, description string) ([]string, error) {
	var created []string
	note := func(path string) {
		if rel, err := filepath.Rel(p.root, path); err == nil {
			created = append(created, filepath.ToSlash(rel))
		}
	}

	for _, dir := range []string{p.ClaudeDir(), p.CommandsDir(), p.InstalledDir()} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, fmt.Errorf("создание %s: %w", dir, err)
		}
		note(dir)
	}

	if !p.DescriptorExists() {
		if name == "" {
			name = filepath.Base(p.root)
		}
		d := defaultDescriptor(name)
		d.Description = description
		if err := p.WriteDescriptor(d); err != nil {
			return created, err
		}
		note(p.DescriptorPath())
	}

	gitignore := filepath.Join(p.ClaudeDir(), gitignoreName)
	if _, err := os.Stat(gitignore); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(gitignore, []byte(gitignoreContent), 0o644); err != nil {
			return created, fmt.Errorf("создание %s: %w", gitignoreName, err)
		}
		note(gitignore)
	}

	if _, err := os.Stat(p.MetadataPath()); errors.Is(err, os.ErrNotExist) {
		now := time.Now().UTC()
		inst := &Installed{Version: DefaultVersion, Created: &now}
		if err := p.WriteInstalled(inst); err != nil {
			return created, err
		}
		note(p.MetadataPath())
	}

	return created, nil
}

func defaultDescriptor(name string) *Descriptor {
	return &Descriptor{
		Name:         name,
		Version:      DefaultVersion,
		Dependencies: map[string]string{},
	}
}

// writeJSONAtomic пишет JSON с отступами во временный файл рядом с path
// и переименовывает его.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("кодирование %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("создание %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("запись %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("запись %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("права %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("сохранение %s: %w", filepath.Base(path), err)
	}
	return nil
}
