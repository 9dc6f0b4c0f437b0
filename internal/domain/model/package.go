package model

import "time"

// Package — одна опубликованная версия именованного пакета команд.
// Хранится в таблице packages. Пара (Name, Version) уникальна и неизменяема.
type Package struct {
	// ID — суррогатный ключ
	ID int64
	// Name — имя пакета (строчные латинские буквы, цифры, дефис)
	Name string
	// Version — строгая semver-строка MAJOR.MINOR.PATCH[-pre][+build]
	Version string
	// Description — описание (может быть пустым)
	Description string
	// Repository — URL репозитория (опционально)
	Repository *string
	// License — идентификатор лицензии (опционально)
	License *string
	// Homepage — URL домашней страницы (опционально)
	Homepage *string
	// Category — категория (опционально)
	Category *string
	// AuthorID — владелец пакета (users.id)
	AuthorID int64
	// AuthorUsername — имя автора (из JOIN с users)
	AuthorUsername string
	// Downloads — счётчик скачиваний
	Downloads int64
	// PublishedAt — время публикации; определяет "latest"
	PublishedAt time.Time
	// UpdatedAt — время последнего изменения счётчика
	UpdatedAt time.Time
	// Tags — теги пакета (заполняются отдельным запросом)
	Tags []string
}

// PackageFile — файл пакета. Принадлежит ровно одному Package.
type PackageFile struct {
	ID        int64
	PackageID int64
	// Filename — относительный путь файла, всегда с расширением .md
	Filename string
	// Content — содержимое файла как есть
	Content string
	// ContentHash — SHA-256 (hex) содержимого, вычисляется при публикации
	ContentHash string
	CreatedAt   time.Time
}

// DownloadEvent — запись журнала скачиваний. Только вставка.
type DownloadEvent struct {
	ID        int64
	PackageID int64
	// UserID — аутентифицированный пользователь (nil для анонимных)
	UserID *int64
	// IPAddress — адрес клиента (опционально)
	IPAddress    *string
	DownloadedAt time.Time
}
