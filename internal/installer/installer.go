// Пакет installer — установка пакетов команд из реестра в проект:
// файлы пишутся в .claude/installed/<name>, а в .claude/commands/<name>
// появляется ссылка на этот каталог (или его копия).
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/drdator/ccm/internal/api/dto"
	"github.com/drdator/ccm/internal/project"
)

var (
	// ErrNotInstalled — пакет не установлен в проекте.
	ErrNotInstalled = errors.New("command is not installed")
	// ErrNoMatchingVersion — ни одна версия не удовлетворяет ограничению.
	ErrNoMatchingVersion = errors.New("no version satisfies the constraint")
)

// Registry — операции реестра, нужные установщику.
type Registry interface {
	Download(ctx context.Context, name, version string) (*dto.Download, error)
	Versions(ctx context.Context, name string) (*dto.VersionsResponse, error)
}

// Result — итог установки одного пакета.
type Result struct {
	Name        string
	Version     string
	Description string
	Tags        []string
	Files       []string
	// Spec — записанная в ccm.json спецификация версии
	Spec string
	// Skipped — пакет уже установлен, ничего не записано
	Skipped bool
	Link    LinkResult
}

// Failure — ошибка установки одной зависимости.
type Failure struct {
	Name string
	Spec string
	Err  error
}

// BulkResult — итог установки всех зависимостей.
type BulkResult struct {
	Installed []*Result
	Failed    []Failure
}

// Installer устанавливает пакеты в проект.
type Installer struct {
	project  *project.Project
	registry Registry
	linker   Linker
	logger   *slog.Logger
	now      func() time.Time
}

// New создаёт установщик.
func New(p *project.Project, registry Registry, linker Linker, logger *slog.Logger) *Installer {
	return &Installer{
		project:  p,
		registry: registry,
		linker:   linker,
		logger:   logger.With(slog.String("component", "installer")),
		now:      time.Now,
	}
}

// ParseSpec разбирает аргумент name[@version]. Разделитель — последний "@"
// не в начале строки; версия из аргумента важнее flagVersion.
func ParseSpec(arg, flagVersion string) (name, version string) {
	if idx := strings.LastIndex(arg, "@"); idx > 0 {
		if v := arg[idx+1:]; v != "" {
			return arg[:idx], v
		}
		return arg[:idx], flagVersion
	}
	return arg, flagVersion
}

// Install устанавливает пакет. Пустая version — последняя опубликованная.
// Если пакет уже есть в каталоге команд и force=false, ничего не меняет.
func (i *Installer) Install(ctx context.Context, name, version string, force bool) (*Result, error) {
	return i.install(ctx, name, version, version, force)
}

func (i *Installer) install(ctx context.Context, name, version, spec string, force bool) (*Result, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	pkg, err := i.registry.Download(ctx, name, version)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Name:        pkg.Name,
		Version:     pkg.Version,
		Description: pkg.Description,
		Tags:        pkg.Tags,
	}
	for _, f := range pkg.Files {
		res.Files = append(res.Files, f.Filename)
	}

	target := i.project.CommandPath(name)
	mirror := i.project.MirrorPath(name)

	if _, err := os.Lstat(target); err == nil && !force {
		i.logger.Debug("Пакет уже установлен, пропуск", slog.String("name", name))
		res.Skipped = true
		return res, nil
	}

	for _, f := range pkg.Files {
		if err := validateFilename(f.Filename); err != nil {
			return nil, err
		}
	}
	if len(pkg.Files) == 0 {
		return nil, fmt.Errorf("package %s@%s has no files", pkg.Name, pkg.Version)
	}

	if err := i.project.EnsureDirs(); err != nil {
		return nil, err
	}
	for _, p := range []string{target, mirror} {
		if err := os.RemoveAll(p); err != nil {
			return nil, fmt.Errorf("удаление %s: %w", p, err)
		}
	}

	for _, f := range pkg.Files {
		dst := filepath.Join(mirror, filepath.FromSlash(f.Filename))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("создание %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("запись %s: %w", f.Filename, err)
		}
	}

	res.Link, err = i.linker.Link(mirror, target)
	if err != nil {
		return nil, err
	}
	if res.Link.Mode == LinkCopied {
		i.logger.Warn("Символическая ссылка недоступна, пакет скопирован",
			slog.String("name", name),
			slog.String("error", res.Link.SymlinkErr.Error()),
		)
	}

	if spec == "" {
		spec = "^" + pkg.Version
	}
	res.Spec = spec

	desc, err := i.project.ReadDescriptor()
	if err != nil {
		return nil, err
	}
	desc.SetDependency(name, spec)
	if err := i.project.WriteDescriptor(desc); err != nil {
		return nil, err
	}

	inst, err := i.project.ReadInstalled()
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(i.project.Root(), mirror)
	if err != nil {
		rel = mirror
	}
	tags := pkg.Tags
	if tags == nil {
		tags = []string{}
	}
	inst.Packages[name] = project.InstalledPackage{
		Version:       pkg.Version,
		Description:   pkg.Description,
		Tags:          tags,
		InstalledAt:   i.now().UTC(),
		Files:         res.Files,
		InstalledPath: filepath.ToSlash(rel),
	}
	if err := i.project.WriteInstalled(inst); err != nil {
		return nil, err
	}

	i.logger.Debug("Пакет установлен",
		slog.String("name", name),
		slog.String("version", pkg.Version),
		slog.String("link", res.Link.Mode.String()),
	)
	return res, nil
}

// InstallDependencies устанавливает все зависимости из ccm.json по порядку
// имён. Ошибка одного пакета не останавливает остальные.
func (i *Installer) InstallDependencies(ctx context.Context) (*BulkResult, error) {
	desc, err := i.project.ReadDescriptor()
	if err != nil {
		return nil, err
	}
	deps := desc.AllDependencies()
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &BulkResult{}
	for _, name := range names {
		spec := deps[name]
		res, err := i.installSpec(ctx, name, spec)
		if err != nil {
			i.logger.Warn("Ошибка установки зависимости",
				slog.String("name", name),
				slog.String("spec", spec),
				slog.String("error", err.Error()),
			)
			out.Failed = append(out.Failed, Failure{Name: name, Spec: spec, Err: err})
			continue
		}
		out.Installed = append(out.Installed, res)
	}
	return out, nil
}

func (i *Installer) installSpec(ctx context.Context, name, spec string) (*Result, error) {
	version, err := i.Resolve(ctx, name, spec)
	if err != nil {
		return nil, err
	}
	return i.install(ctx, name, version, spec, true)
}

// Resolve превращает спецификацию из ccm.json в конкретную версию.
// Точная версия возвращается как есть; "", "*" и "latest" — последняя
// (пустая строка); ограничения (^, ~, диапазоны) сопоставляются со списком
// версий, выбирается самая поздняя по публикации.
func (i *Installer) Resolve(ctx context.Context, name, spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "", "*", "latest":
		return "", nil
	}
	if v, err := semver.StrictNewVersion(spec); err == nil {
		return v.Original(), nil
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return "", fmt.Errorf("invalid version constraint %q for %s: %w", spec, name, err)
	}
	resp, err := i.registry.Versions(ctx, name)
	if err != nil {
		return "", err
	}
	// версии приходят от новых к старым по времени публикации
	for _, cmd := range resp.Versions {
		v, err := semver.NewVersion(cmd.Version)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			return cmd.Version, nil
		}
	}
	return "", fmt.Errorf("%w: %s@%s", ErrNoMatchingVersion, name, spec)
}

// Uninstall удаляет ссылку, файлы пакета, запись о нём и зависимость.
func (i *Installer) Uninstall(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	target := i.project.CommandPath(name)
	mirror := i.project.MirrorPath(name)
	_, targetErr := os.Lstat(target)
	_, mirrorErr := os.Lstat(mirror)

	inst, err := i.project.ReadInstalled()
	if err != nil {
		return err
	}
	_, recorded := inst.Packages[name]

	var declared bool
	var desc *project.Descriptor
	if i.project.DescriptorExists() {
		if desc, err = i.project.ReadDescriptor(); err != nil {
			return err
		}
		_, declared = desc.AllDependencies()[name]
	}

	if targetErr != nil && mirrorErr != nil && !recorded && !declared {
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	for _, p := range []string{target, mirror} {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("удаление %s: %w", p, err)
		}
	}
	if recorded {
		delete(inst.Packages, name)
		if err := i.project.WriteInstalled(inst); err != nil {
			return err
		}
	}
	if declared {
		desc.RemoveDependency(name)
		if err := i.project.WriteDescriptor(desc); err != nil {
			return err
		}
	}
	i.logger.Debug("Пакет удалён", slog.String("name", name))
	return nil
}

// validateName — имя пакета — один сегмент пути.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid command name %q", name)
	}
	return nil
}

// validateFilename — файл пакета не выходит за пределы его каталога.
func validateFilename(name string) error {
	if name == "" || strings.Contains(name, `\`) || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return fmt.Errorf("unsafe file name %q in package", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("unsafe file name %q in package", name)
		}
	}
	if path.Clean(name) != name {
		return fmt.Errorf("unsafe file name %q in package", name)
	}
	return nil
}
