package orm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)

// SearchQuery filters the registry index. Empty strings match everything.
type SearchQuery struct {
	Registry          string
	Namespace         string
	Repository        string
	Tag               string
	IncludeYanked     bool
	IncludeDeprecated bool
	Limit             int
}

// Search lists index entries newest first
func (db *DB) Search(ctx context.Context, query SearchQuery) ([]IndexEntry, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	chain := gorm.G[IndexEntry](db.dbGorm).Where(&IndexEntry{
		Registry:   query.Registry,
		Namespace:  query.Namespace,
		Repository: query.Repository,
		Tag:        query.Tag,
	})
	if !query.IncludeYanked {
		chain = chain.Where("yank = ?", false)
	}
	if !query.IncludeDeprecated {
		chain = chain.Where("deprecated = ?", false)
	}

	entries, err := chain.Order("created_at desc, id desc").Limit(limit).Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"search index",
			fmt.Sprintf(
				"registry=%q, namespace=%q, repository=%q, tag=%q",
				query.Registry,
				query.Namespace,
				query.Repository,
				query.Tag,
			),
		)
	}

	return entries, nil
}

// Resolve finds the index entry published under the given coordinates,
// yanked or not
func (db *DB) Resolve(
	ctx context.Context,
	registry, namespace, repository, tag string,
) (*IndexEntry, error) {
	if registry == "" || namespace == "" || repository == "" || tag == "" {
		return nil, &BadInputError{
			Reason: fmt.Sprintf(
				"All parameters must be provided: registry=%q, namespace=%q, repository=%q, tag=%q",
				registry,
				namespace,
				repository,
				tag,
			),
		}
	}

	entry, err := gorm.G[IndexEntry](db.dbGorm).Where(&IndexEntry{
		Registry:   registry,
		Namespace:  namespace,
		Repository: repository,
		Tag:        tag,
	}).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"resolve index entry",
			fmt.Sprintf(
				"registry=%s, namespace=%s, repository=%s, tag=%s",
				registry,
				namespace,
				repository,
				tag,
			),
		)
	}

	return &entry, nil
}

func (db *DB) GetIndexEntry(ctx context.Context, id uint64) (*IndexEntry, error) {
	entry, err := gorm.G[IndexEntry](db.dbGorm).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get index entry", fmt.Sprintf("id=%d", id))
	}

	return &entry, nil
}

// SetYank marks an index entry as withdrawn, or restores it
func (db *DB) SetYank(ctx context.Context, id uint64, yank bool) error {
	return db.setFlag(ctx, id, "yank", yank)
}

// SetDeprecated marks an index entry as superseded, or clears the mark
func (db *DB) SetDeprecated(ctx context.Context, id uint64, deprecated bool) error {
	return db.setFlag(ctx, id, "deprecated", deprecated)
}

func (db *DB) setFlag(ctx context.Context, id uint64, column string, value bool) error {
	details := fmt.Sprintf("id=%d, %s=%t", id, column, value)

	rows, err := gorm.G[IndexEntry](db.dbGorm).
		Where("id = ?", id).
		Update(ctx, column, value)
	if err != nil {
		return wrapErrorWithDetails(err, "update index entry", details)
	}

	if rows == 0 {
		return &NotFoundError{Operation: "update index entry", Key: details}
	}

	return nil
}
