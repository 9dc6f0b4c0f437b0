// Пакет memrepo — реализация репозиториев в памяти для unit-тестов
// сервисов и HTTP handlers. Повторяет семантику SQL-запросов пакета
// repository: "последняя" версия по времени публикации, откат транзакции
// восстанавливает снимок состояния.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository"
)

// Store — хранилище в памяти. Безопасно для конкурентного использования.
type Store struct {
	txMu sync.Mutex // сериализует транзакции
	mu   sync.Mutex
	st   state

	// Clock — источник времени публикации; по умолчанию каждый вызов
	// сдвигает время на секунду, чтобы порядок публикаций был строгим.
	Clock func() time.Time

	// FailFilesInsert — если задана, CreateBatch возвращает эту ошибку
	// (проверка отката публикации).
	FailFilesInsert error
}

type state struct {
	nextID   int64
	users    []model.User
	packages []model.Package
	files    []model.PackageFile
	tags     map[int64][]string
	events   []model.DownloadEvent
}

// New создаёт пустое хранилище.
func New() *Store {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	s := &Store{st: state{tags: map[int64][]string{}}}
	s.Clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

// Repos возвращает репозитории, работающие вне транзакции.
func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Users:     userRepo{s},
		Packages:  packageRepo{s},
		Files:     fileRepo{s},
		Tags:      tagRepo{s},
		Downloads: downloadRepo{s},
	}
}

// InTx выполняет fn; при ошибке состояние откатывается к снимку.
func (s *Store) InTx(ctx context.Context, fn func(repos repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s.Repos()); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Counts возвращает количество строк по таблицам (для проверок в тестах).
func (s *Store) Counts() (packages, files, tags, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.tags {
		tags += len(t)
	}
	return len(s.st.packages), len(s.st.files), tags, len(s.st.events)
}

// Events возвращает копию журнала скачиваний.
func (s *Store) Events() []model.DownloadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DownloadEvent(nil), s.st.events...)
}

func (st state) clone() state {
	c := state{
		nextID:   st.nextID,
		users:    append([]model.User(nil), st.users...),
		packages: append([]model.Package(nil), st.packages...),
		files:    append([]model.PackageFile(nil), st.files...),
		events:   append([]model.DownloadEvent(nil), st.events...),
		tags:     make(map[int64][]string, len(st.tags)),
	}
	for k, v := range st.tags {
		c.tags[k] = append([]string(nil), v...)
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) username(id int64) string {
	for _, u := range st.users {
		if u.ID == id {
			return u.Username
		}
	}
	return ""
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.st.users {
		if e.Username == u.Username {
			return repository.ErrDuplicateUsername
		}
		if e.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
		if e.APIKey == u.APIKey {
			return repository.ErrConflict
		}
	}
	u.ID = r.s.st.id()
	u.CreatedAt = r.s.Clock()
	u.UpdatedAt = u.CreatedAt
	r.s.st.users = append(r.s.st.users, *u)
	return nil
}

func (r userRepo) find(match func(u model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if match(u) {
			c := u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r userRepo) GetByLogin(_ context.Context, login string) (*model.User, error) {
	return r.find(func(u model.User) bool {
		return u.Username == login || strings.EqualFold(u.Email, login)
	})
}

func (r userRepo) GetByAPIKey(_ context.Context, apiKey string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.APIKey == apiKey })
}

func (r userRepo) UpdateAPIKey(_ context.Context, id int64, apiKey string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.st.users {
		if r.s.st.users[i].ID == id {
			r.s.st.users[i].APIKey = apiKey
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- packages ---

type packageRepo struct{ s *Store }

func (r packageRepo) Create(_ context.Context, p *model.Package) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.st.packages {
		if e.Name == p.Name && e.Version == p.Version {
			return repository.ErrConflict
		}
	}
	p.ID = r.s.st.id()
	p.PublishedAt = r.s.Clock()
	p.UpdatedAt = p.PublishedAt
	p.Downloads = 0
	p.AuthorUsername = r.s.st.username(p.AuthorID)
	stored := *p
	stored.Tags = nil
	r.s.st.packages = append(r.s.st.packages, stored)
	return nil
}

func (r packageRepo) Exists(_ context.Context, name, version string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.st.packages {
		if e.Name == name && e.Version == version {
			return true, nil
		}
	}
	return false, nil
}

func (r packageRepo) GetByNameVersion(_ context.Context, name, version string) (*model.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.st.packages {
		if e.Name == name && e.Version == version {
			return r.out(e), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r packageRepo) GetLatest(_ context.Context, name string) (*model.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	versions := r.versions(name)
	if len(versions) == 0 {
		return nil, repository.ErrNotFound
	}
	return r.out(versions[0]), nil
}

func (r packageRepo) ListVersions(_ context.Context, name string) ([]*model.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.outAll(r.versions(name)), nil
}

func (r packageRepo) ListLatest(_ context.Context, limit, offset int) ([]*model.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := r.latest()
	sortRecent(latest)
	return r.outAll(page(latest, limit, offset)), nil
}

func (r packageRepo) CountNames(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.latest()), nil
}

func (r packageRepo) SearchLatest(_ context.Context, query string, limit, offset int) ([]*model.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := r.search(query)
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.Downloads != b.Downloads {
			return a.Downloads > b.Downloads
		}
		return newer(a, b)
	})
	return r.outAll(page(found, limit, offset)), nil
}

func (r packageRepo) CountSearch(_ context.Context, query string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.search(query)), nil
}

func (r packageRepo) IncrementDownloads(_ context.Context, id int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.st.packages {
		if r.s.st.packages[i].ID == id {
			r.s.st.packages[i].Downloads++
			return r.s.st.packages[i].Downloads, nil
		}
	}
	return 0, repository.ErrNotFound
}

// versions — версии имени, новые первыми. Вызывается под mu.
func (r packageRepo) versions(name string) []model.Package {
	var out []model.Package
	for _, e := range r.s.st.packages {
		if e.Name == name {
			out = append(out, e)
		}
	}
	sortRecent(out)
	return out
}

// latest — по одной последней версии на имя. Вызывается под mu.
func (r packageRepo) latest() []model.Package {
	byName := map[string]model.Package{}
	for _, e := range r.s.st.packages {
		if cur, ok := byName[e.Name]; !ok || newer(e, cur) {
			byName[e.Name] = e
		}
	}
	out := make([]model.Package, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	return out
}

func (r packageRepo) search(query string) []model.Package {
	q := strings.ToLower(query)
	var out []model.Package
	for _, p := range r.latest() {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}

func (r packageRepo) out(p model.Package) *model.Package {
	p.AuthorUsername = r.s.st.username(p.AuthorID)
	return &p
}

func (r packageRepo) outAll(ps []model.Package) []*model.Package {
	out := make([]*model.Package, 0, len(ps))
	for _, p := range ps {
		out = append(out, r.out(p))
	}
	return out
}

func newer(a, b model.Package) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	return a.ID > b.ID
}

func sortRecent(ps []model.Package) {
	sort.SliceStable(ps, func(i, j int) bool { return newer(ps[i], ps[j]) })
}

func page(ps []model.Package, limit, offset int) []model.Package {
	if offset >= len(ps) {
		return nil
	}
	end := offset + limit
	if end > len(ps) {
		end = len(ps)
	}
	return ps[offset:end]
}

// --- files ---

type fileRepo struct{ s *Store }

func (r fileRepo) CreateBatch(_ context.Context, packageID int64, files []*model.PackageFile) error {
	if r.s.FailFilesInsert != nil {
		return r.s.FailFilesInsert
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range files {
		f.ID = r.s.st.id()
		f.PackageID = packageID
		f.CreatedAt = r.s.Clock()
		r.s.st.files = append(r.s.st.files, *f)
	}
	return nil
}

func (r fileRepo) ListByPackage(_ context.Context, packageID int64) ([]*model.PackageFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.PackageFile
	for _, f := range r.s.st.files {
		if f.PackageID == packageID {
			c := f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// --- tags ---

type tagRepo struct{ s *Store }

func (r tagRepo) AddTags(_ context.Context, packageID int64, tags []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := r.s.st.tags[packageID]
	for _, t := range tags {
		dup := false
		for _, e := range existing {
			if e == t {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, t)
		}
	}
	sort.Strings(existing)
	r.s.st.tags[packageID] = existing
	return nil
}

func (r tagRepo) ListByPackages(_ context.Context, packageIDs []int64) (map[int64][]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64][]string, len(packageIDs))
	for _, id := range packageIDs {
		if t, ok := r.s.st.tags[id]; ok {
			out[id] = append([]string(nil), t...)
		}
	}
	return out, nil
}

// --- downloads ---

type downloadRepo struct{ s *Store }

func (r downloadRepo) Record(_ context.Context, e *model.DownloadEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.st.id()
	e.DownloadedAt = r.s.Clock()
	r.s.st.events = append(r.s.st.events, *e)
	return nil
}

func (r downloadRepo) CountByPackage(_ context.Context, packageID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.st.events {
		if e.PackageID == packageID {
			n++
		}
	}
	return n, nil
}
