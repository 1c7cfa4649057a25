package orm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// PackageRecord is a fully joined package as published. The embedded blob
// is left out.
type PackageRecord struct {
	Entry        IndexEntry    `json:"index"`
	Package      Package       `json:"package"`
	Meta         Meta          `json:"meta"`
	Authors      []Author      `json:"authors"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
	URLWhitelist []string      `json:"urlWhitelist,omitempty"`
	Source       Source        `json:"source"`
	GitInfo      *GitInfo      `json:"gitInfo,omitempty"`
	Registry     *Registry     `json:"registry,omitempty"`
}

// LoadPackage joins the package behind an index entry
func (db *DB) LoadPackage(ctx context.Context, entry *IndexEntry) (*PackageRecord, error) {
	if entry == nil {
		return nil, &BadInputError{Reason: "load package with nil index entry"}
	}

	details := fmt.Sprintf("package=%d", entry.PackageID)

	pkg, err := gorm.G[Package](db.dbGorm).Where("id = ?", entry.PackageID).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "load package", details)
	}

	meta, err := gorm.G[Meta](db.dbGorm).Where("id = ?", pkg.MetaID).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "load package meta", details)
	}

	var authors []Author
	err = db.dbGorm.WithContext(ctx).
		Joins("JOIN package_authors ON package_authors.author_id = authors.id").
		Where("package_authors.meta_id = ?", meta.ID).
		Order("authors.id").
		Find(&authors).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "load package authors", details)
	}

	source, err := gorm.G[Source](db.dbGorm).
		Omit("wasm_blob").
		Where("id = ?", pkg.SourceID).
		First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "load package source", details)
	}

	record := &PackageRecord{
		Entry:   *entry,
		Package: pkg,
		Meta:    meta,
		Authors: authors,
		Source:  source,
	}

	if pkg.CapabilitiesID != nil {
		capabilities, err := gorm.G[Capabilities](db.dbGorm).
			Where("id = ?", *pkg.CapabilitiesID).
			First(ctx)
		if err != nil {
			return nil, wrapErrorWithDetails(err, "load package capabilities", details)
		}
		record.Capabilities = &capabilities

		urls, err := gorm.G[WhitelistURL](db.dbGorm).
			Where(&WhitelistURL{CapabilitiesID: capabilities.ID}).
			Order("id").
			Find(ctx)
		if err != nil {
			return nil, wrapErrorWithDetails(err, "load url whitelist", details)
		}
		for _, url := range urls {
			record.URLWhitelist = append(record.URLWhitelist, url.URL)
		}
	}

	if source.GitInfoID != nil {
		gitInfo, err := gorm.G[GitInfo](db.dbGorm).Where("id = ?", *source.GitInfoID).First(ctx)
		if err != nil {
			return nil, wrapErrorWithDetails(err, "load git info", details)
		}
		record.GitInfo = &gitInfo
	}

	if source.RegistryID != nil {
		registry, err := gorm.G[Registry](db.dbGorm).Where("id = ?", *source.RegistryID).First(ctx)
		if err != nil {
			return nil, wrapErrorWithDetails(err, "load registry", details)
		}
		record.Registry = &registry
	}

	return record, nil
}

// Download returns the embedded blob of a source. Remote sources have none
// and are reported as not found.
func (db *DB) Download(ctx context.Context, digest string) ([]byte, error) {
	if digest == "" {
		return nil, &BadInputError{Reason: "download with empty digest"}
	}

	source, err := gorm.G[Source](db.dbGorm).Where(&Source{Digest: digest}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "download", fmt.Sprintf("digest=%s", digest))
	}

	if len(source.WasmBlob) == 0 {
		return nil, &NotFoundError{
			Operation: "download",
			Key:       fmt.Sprintf("embedded blob of digest=%s", digest),
		}
	}

	return source.WasmBlob, nil
}

// EntityKind names a table that can be purged by id
type EntityKind string

const (
	KindMeta         EntityKind = "meta"
	KindAuthor       EntityKind = "author"
	KindSource       EntityKind = "source"
	KindGitInfo      EntityKind = "git_info"
	KindRegistry     EntityKind = "registry"
	KindCapabilities EntityKind = "capabilities"
	KindPackage      EntityKind = "package"
	KindIndexEntry   EntityKind = "index_entry"
)

// DeleteByID removes one row. Dependent rows follow the foreign key rules:
// packages go with their meta or source, sources lose their git info or
// registry link, packages lose their capabilities link.
func (db *DB) DeleteByID(ctx context.Context, kind EntityKind, id uint64) error {
	var (
		rows int
		err  error
	)

	switch kind {
	case KindMeta:
		rows, err = deleteByID[Meta](ctx, db.dbGorm, id)
	case KindAuthor:
		rows, err = deleteByID[Author](ctx, db.dbGorm, id)
	case KindSource:
		rows, err = deleteByID[Source](ctx, db.dbGorm, id)
	case KindGitInfo:
		rows, err = deleteByID[GitInfo](ctx, db.dbGorm, id)
	case KindRegistry:
		rows, err = deleteByID[Registry](ctx, db.dbGorm, id)
	case KindCapabilities:
		rows, err = deleteByID[Capabilities](ctx, db.dbGorm, id)
	case KindPackage:
		rows, err = deleteByID[Package](ctx, db.dbGorm, id)
	case KindIndexEntry:
		rows, err = deleteByID[IndexEntry](ctx, db.dbGorm, id)
	default:
		return &BadInputError{Reason: fmt.Sprintf("unknown entity kind %q", kind)}
	}

	details := fmt.Sprintf("%s id=%d", kind, id)
	if err != nil {
		return wrapErrorWithDetails(err, "delete", details)
	}

	if rows == 0 {
		return &NotFoundError{Operation: "delete", Key: details}
	}

	return nil
}

// Count returns the number of rows of one kind
func (db *DB) Count(ctx context.Context, kind EntityKind) (int64, error) {
	var (
		n   int64
		err error
	)

	switch kind {
	case KindMeta:
		n, err = gorm.G[Meta](db.dbGorm).Count(ctx, "*")
	case KindAuthor:
		n, err = gorm.G[Author](db.dbGorm).Count(ctx, "*")
	case KindSource:
		n, err = gorm.G[Source](db.dbGorm).Count(ctx, "*")
	case KindGitInfo:
		n, err = gorm.G[GitInfo](db.dbGorm).Count(ctx, "*")
	case KindRegistry:
		n, err = gorm.G[Registry](db.dbGorm).Count(ctx, "*")
	case KindCapabilities:
		n, err = gorm.G[Capabilities](db.dbGorm).Count(ctx, "*")
	case KindPackage:
		n, err = gorm.G[Package](db.dbGorm).Count(ctx, "*")
	case KindIndexEntry:
		n, err = gorm.G[IndexEntry](db.dbGorm).Count(ctx, "*")
	default:
		return 0, &BadInputError{Reason: fmt.Sprintf("unknown entity kind %q", kind)}
	}

	if err != nil {
		return 0, wrapErrorWithDetails(err, "count", string(kind))
	}

	return n, nil
}

// Kinds lists every entity kind
func Kinds() []EntityKind {
	return []EntityKind{
		KindMeta,
		KindAuthor,
		KindSource,
		KindGitInfo,
		KindRegistry,
		KindCapabilities,
		KindPackage,
		KindIndexEntry,
	}
}

func deleteByID[T any](ctx context.Context, db *gorm.DB, id uint64) (int, error) {
	//nolint:wrapcheck // wrapped by the caller
	return gorm.G[T](db).Where("id = ?", id).Delete(ctx)
}

// DeleteSourceByDigest purges a source and, through the cascade, the package
// and index entries built on it
func (db *DB) DeleteSourceByDigest(ctx context.Context, digest string) error {
	if digest == "" {
		return &BadInputError{Reason: "delete source with empty digest"}
	}

	source, err := gorm.G[Source](db.dbGorm).
		Select("id").
		Where(&Source{Digest: digest}).
		First(ctx)
	if err != nil {
		return wrapErrorWithDetails(err, "delete source", fmt.Sprintf("digest=%s", digest))
	}

	return db.DeleteByID(ctx, KindSource, source.ID)
}
