package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drdator/ccm/internal/api/dto"
	"github.com/drdator/ccm/internal/project"
)

var errNotFound = errors.New("command not found")

// fakeRegistry хранит версии пакетов от новых к старым по публикации.
type fakeRegistry struct {
	packages  map[string][]dto.Download
	downloads []string
}

func (f *fakeRegistry) Download(_ context.Context, name, version string) (*dto.Download, error) {
	versions := f.packages[name]
	for i := range versions {
		if version == "" || versions[i].Version == version {
			f.downloads = append(f.downloads, name+"@"+versions[i].Version)
			pkg := versions[i]
			return &pkg, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeRegistry) Versions(_ context.Context, name string) (*dto.VersionsResponse, error) {
	versions := f.packages[name]
	if len(versions) == 0 {
		return nil, errNotFound
	}
	resp := &dto.VersionsResponse{Name: name}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, dto.Command{Name: name, Version: v.Version})
	}
	return resp, nil
}

func pkg(name, version string, files ...string) dto.Download {
	d := dto.Download{Name: name, Version: version, Description: name + " description", Tags: []string{"cli"}}
	for _, f := range files {
		d.Files = append(d.Files, dto.File{Filename: f, Content: "# " + name + " " + version + " " + f})
	}
	return d
}

func newInstaller(t *testing.T, reg *fakeRegistry, linker Linker) (*Installer, *project.Project) {
	t.Helper()
	p := project.New(t.TempDir())
	if linker == nil {
		linker = NewFallbackLinker()
	}
	inst := New(p, reg, linker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	inst.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return inst, p
}

// snapshot — состояние дерева каталогов для проверки отсутствия записи.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		state := fmt.Sprintf("%v %d %d", info.Mode(), info.Size(), info.ModTime().UnixNano())
		if info.Mode()&fs.ModeSymlink != 0 {
			link, _ := os.Readlink(path)
			state += " -> " + link
		}
		out[path] = state
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return out
}

func TestInstallAndSkip(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{
		"tool": {pkg("tool", "1.0.0", "hello.md", "sub/nested.md")},
	}}
	inst, p := newInstaller(t, reg, nil)
	ctx := context.Background()

	res, err := inst.Install(ctx, "tool", "", false)
	if err != nil {
		t.Fatalf("Install() ошибка: %v", err)
	}
	if res.Skipped || res.Version != "1.0.0" || res.Spec != "^1.0.0" {
		t.Errorf("Install() = %+v", res)
	}

	info, err := os.Lstat(p.CommandPath("tool"))
	if err != nil {
		t.Fatalf("ссылка не создана: %v", err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		t.Fatalf("%s не символическая ссылка (%v)", p.CommandPath("tool"), info.Mode())
	}
	data, err := os.ReadFile(filepath.Join(p.CommandPath("tool"), "sub", "nested.md"))
	if err != nil || string(data) != "# tool 1.0.0 sub/nested.md" {
		t.Errorf("файл через ссылку = %q, %v", data, err)
	}

	desc, _ := p.ReadDescriptor()
	if desc.Dependencies["tool"] != "^1.0.0" {
		t.Errorf("dependencies = %v", desc.Dependencies)
	}
	installed, _ := p.ReadInstalled()
	rec := installed.Packages["tool"]
	if rec.Version != "1.0.0" || len(rec.Files) != 2 || rec.InstalledPath != ".claude/installed/tool" {
		t.Errorf("запись об установке = %+v", rec)
	}

	before := snapshot(t, p.Root())
	again, err := inst.Install(ctx, "tool", "", false)
	if err != nil {
		t.Fatalf("повторный Install() ошибка: %v", err)
	}
	if !again.Skipped {
		t.Error("повторная установка без --force должна пропускаться")
	}
	after := snapshot(t, p.Root())
	if len(before) != len(after) {
		t.Fatalf("число файлов изменилось: %d → %d", len(before), len(after))
	}
	for path, state := range before {
		if after[path] != state {
			t.Errorf("%s изменён при пропуске: %q → %q", path, state, after[path])
		}
	}
}

func TestInstallDanglingLinkCountsAsInstalled(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{"tool": {pkg("tool", "1.0.0", "a.md")}}}
	inst, p := newInstaller(t, reg, nil)
	if err := os.MkdirAll(p.CommandsDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../installed/missing", p.CommandPath("tool")); err != nil {
		t.Skipf("символические ссылки недоступны: %v", err)
	}

	res, err := inst.Install(context.Background(), "tool", "", false)
	if err != nil || !res.Skipped {
		t.Errorf("Install() = %+v, %v; ожидается пропуск", res, err)
	}
}

func TestInstallForce(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{
		"tool": {pkg("tool", "1.0.0", "old.md")},
	}}
	inst, p := newInstaller(t, reg, nil)
	ctx := context.Background()

	if _, err := inst.Install(ctx, "tool", "", false); err != nil {
		t.Fatalf("Install() ошибка: %v", err)
	}

	reg.packages["tool"] = []dto.Download{pkg("tool", "2.0.0", "new.md"), pkg("tool", "1.0.0", "old.md")}
	res, err := inst.Install(ctx, "tool", "", true)
	if err != nil {
		t.Fatalf("Install(force) ошибка: %v", err)
	}
	if res.Version != "2.0.0" || res.Spec != "^2.0.0" {
		t.Errorf("Install(force) = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(p.MirrorPath("tool"), "old.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("файл прежней версии должен быть удалён")
	}
	if _, err := os.Stat(filepath.Join(p.CommandPath("tool"), "new.md")); err != nil {
		t.Errorf("файл новой версии недоступен: %v", err)
	}

	res, err = inst.Install(ctx, "tool", "1.0.0", true)
	if err != nil {
		t.Fatalf("Install(1.0.0) ошибка: %v", err)
	}
	desc, _ := p.ReadDescriptor()
	if res.Version != "1.0.0" || desc.Dependencies["tool"] != "1.0.0" {
		t.Errorf("явная версия: результат %+v, dependencies %v", res, desc.Dependencies)
	}
}

func TestInstallRejectsUnsafeFilenames(t *testing.T) {
	for _, name := range []string{"../evil.md", "/etc/evil.md", "a/../../evil.md", `dir\evil.md`, "a//b.md"} {
		t.Run(name, func(t *testing.T) {
			reg := &fakeRegistry{packages: map[string][]dto.Download{"tool": {pkg("tool", "1.0.0", "ok.md", name)}}}
			inst, p := newInstaller(t, reg, nil)

			if _, err := inst.Install(context.Background(), "tool", "", false); err == nil {
				t.Fatal("Install() должен отклонить небезопасное имя файла")
			}
			if _, err := os.Stat(p.ClaudeDir()); !errors.Is(err, os.ErrNotExist) {
				t.Error("при отказе ничего не должно записываться")
			}
		})
	}
}

func TestInstallRejectsUnsafeName(t *testing.T) {
	inst, _ := newInstaller(t, &fakeRegistry{}, nil)
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := inst.Install(context.Background(), name, "", false); err == nil {
			t.Errorf("Install(%q) должен вернуть ошибку", name)
		}
	}
}

func TestInstallCopyFallback(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{"tool": {pkg("tool", "1.0.0", "a.md", "dir/b.md")}}}
	linker := &FallbackLinker{symlink: func(string, string) error { return errors.New("operation not permitted") }}
	inst, p := newInstaller(t, reg, linker)

	res, err := inst.Install(context.Background(), "tool", "", false)
	if err != nil {
		t.Fatalf("Install() ошибка: %v", err)
	}
	if res.Link.Mode != LinkCopied || res.Link.SymlinkErr == nil {
		t.Errorf("Link = %+v, ожидается копия с ошибкой ссылки", res.Link)
	}

	info, err := os.Lstat(p.CommandPath("tool"))
	if err != nil || !info.IsDir() {
		t.Fatalf("копия не создана: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(p.CommandPath("tool"), "dir", "b.md"))
	if err != nil || string(data) != "# tool 1.0.0 dir/b.md" {
		t.Errorf("содержимое копии = %q, %v", data, err)
	}
}

func TestFallbackLinkerRelativeSymlink(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, ".claude", "installed", "tool")
	target := filepath.Join(root, ".claude", "commands", "tool")
	if err := os.MkdirAll(source, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := NewFallbackLinker().Link(source, target)
	if err != nil {
		t.Fatalf("Link() ошибка: %v", err)
	}
	if res.Mode != LinkSymlinked {
		t.Skipf("символические ссылки недоступны: %v", res.SymlinkErr)
	}
	link, err := os.Readlink(target)
	if err != nil || link != filepath.Join("..", "installed", "tool") {
		t.Errorf("Readlink() = %q, %v", link, err)
	}
}

func TestInstallDependencies(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{
		"alpha":  {pkg("alpha", "2.0.0", "a.md"), pkg("alpha", "1.2.0", "a.md"), pkg("alpha", "1.1.0", "a.md")},
		"gamma":  {pkg("gamma", "2.1.3", "g.md"), pkg("gamma", "2.2.0", "g.md")},
		"delta":  {pkg("delta", "0.9.0", "d.md")},
		"pinned": {pkg("pinned", "3.0.0", "p.md"), pkg("pinned", "1.1.0", "p.md")},
	}}
	inst, p := newInstaller(t, reg, nil)

	desc := &project.Descriptor{
		Name:    "demo",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"alpha":   "^1.0.0",
			"beta":    "1.0.0",
			"gamma":   "~2.1.0",
			"pinned":  "1.1.0",
			"missing": ">=5.0.0",
		},
		DevDependencies: map[string]string{"delta": "latest"},
	}
	if err := p.WriteDescriptor(desc); err != nil {
		t.Fatal(err)
	}

	res, err := inst.InstallDependencies(context.Background())
	if err != nil {
		t.Fatalf("InstallDependencies() ошибка: %v", err)
	}

	wantDownloads := []string{"alpha@1.2.0", "delta@0.9.0", "gamma@2.1.3", "pinned@1.1.0"}
	if fmt.Sprint(reg.downloads) != fmt.Sprint(wantDownloads) {
		t.Errorf("скачано %v, ожидается %v", reg.downloads, wantDownloads)
	}
	if len(res.Installed) != 4 || len(res.Failed) != 2 {
		t.Fatalf("установлено %d, ошибок %d", len(res.Installed), len(res.Failed))
	}
	if res.Failed[0].Name != "beta" || !errors.Is(res.Failed[0].Err, errNotFound) {
		t.Errorf("первая ошибка = %+v", res.Failed[0])
	}
	if res.Failed[1].Name != "missing" {
		t.Errorf("вторая ошибка = %+v", res.Failed[1])
	}

	after, _ := p.ReadDescriptor()
	for name, spec := range map[string]string{"alpha": "^1.0.0", "gamma": "~2.1.0", "pinned": "1.1.0", "beta": "1.0.0"} {
		if after.Dependencies[name] != spec {
			t.Errorf("dependencies[%s] = %q, ожидается %q", name, after.Dependencies[name], spec)
		}
	}
	if after.DevDependencies["delta"] != "latest" {
		t.Errorf("devDependencies[delta] = %q", after.DevDependencies["delta"])
	}
	if _, ok := after.Dependencies["delta"]; ok {
		t.Error("devDependency не должна переноситься в dependencies")
	}
}

func TestResolve(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{
		// 1.0.0 опубликована после 2.0.0
		"tool": {pkg("tool", "1.0.0"), pkg("tool", "2.0.0"), pkg("tool", "1.5.0"), pkg("tool", "not-semver")},
	}}
	inst, _ := newInstaller(t, reg, nil)

	tests := []struct {
		spec    string
		want    string
		wantErr error
	}{
		{"", "", nil},
		{"*", "", nil},
		{"latest", "", nil},
		{"1.5.0", "1.5.0", nil},
		{"^1.0.0", "1.0.0", nil},
		{">=1.2.0", "2.0.0", nil},
		{"~1.5", "1.5.0", nil},
		{"^3.0.0", "", ErrNoMatchingVersion},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := inst.Resolve(context.Background(), "tool", tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) ошибка = %v, ожидается %v", tt.spec, err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; ожидается %q", tt.spec, got, err, tt.want)
			}
		})
	}

	if _, err := inst.Resolve(context.Background(), "tool", "not a constraint!"); err == nil {
		t.Error("Resolve() должен отклонить некорректное ограничение")
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		arg, flag   string
		wantName    string
		wantVersion string
	}{
		{"tool", "", "tool", ""},
		{"tool", "1.0.0", "tool", "1.0.0"},
		{"tool@1.2.0", "", "tool", "1.2.0"},
		{"tool@1.2.0", "2.0.0", "tool", "1.2.0"},
		{"tool@", "2.0.0", "tool", "2.0.0"},
		{"@scope/tool", "", "@scope/tool", ""},
		{"@scope/tool@1.0.0", "", "@scope/tool", "1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.arg+"+"+tt.flag, func(t *testing.T) {
			name, version := ParseSpec(tt.arg, tt.flag)
			if name != tt.wantName || version != tt.wantVersion {
				t.Errorf("ParseSpec(%q, %q) = %q, %q; ожидается %q, %q", tt.arg, tt.flag, name, version, tt.wantName, tt.wantVersion)
			}
		})
	}
}

func TestUninstall(t *testing.T) {
	reg := &fakeRegistry{packages: map[string][]dto.Download{"tool": {pkg("tool", "1.0.0", "a.md")}}}
	inst, p := newInstaller(t, reg, nil)

	if _, err := inst.Install(context.Background(), "tool", "", false); err != nil {
		t.Fatalf("Install() ошибка: %v", err)
	}
	if err := inst.Uninstall("tool"); err != nil {
		t.Fatalf("Uninstall() ошибка: %v", err)
	}

	for _, path := range []string{p.CommandPath("tool"), p.MirrorPath("tool")} {
		if _, err := os.Lstat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s не удалён", path)
		}
	}
	desc, _ := p.ReadDescriptor()
	if _, ok := desc.Dependencies["tool"]; ok {
		t.Error("зависимость не удалена из ccm.json")
	}
	installed, _ := p.ReadInstalled()
	if _, ok := installed.Packages["tool"]; ok {
		t.Error("запись об установке не удалена")
	}

	if err := inst.Uninstall("tool"); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("повторный Uninstall() = %v, ожидается ErrNotInstalled", err)
	}
}
