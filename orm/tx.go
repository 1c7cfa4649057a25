package orm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// Tx is one open write transaction. Inserts fill in the generated ID of the
// row. Rollback after Commit is a no-op, so callers can always defer it.
type Tx interface {
	InsertMeta(ctx context.Context, meta *Meta) error
	InsertAuthor(ctx context.Context, author *Author) error
	LinkAuthor(ctx context.Context, metaID, authorID uint64) error
	InsertCapabilities(ctx context.Context, capabilities *Capabilities) error
	InsertWhitelistURL(ctx context.Context, url *WhitelistURL) error
	InsertGitInfo(ctx context.Context, gitInfo *GitInfo) error
	InsertRegistry(ctx context.Context, registry *Registry) error
	InsertSource(ctx context.Context, source *Source) error
	InsertPackage(ctx context.Context, pkg *Package) error
	InsertIndexEntry(ctx context.Context, entry *IndexEntry) error
	Commit() error
	Rollback() error
}

type gormTx struct {
	tx   *gorm.DB
	done bool
}

// Begin opens a transaction bound to ctx. Cancelling ctx aborts it.
func (db *DB) Begin(ctx context.Context) (Tx, error) {
	tx := db.dbGorm.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, wrapErrorWithDetails(tx.Error, "begin transaction", "publish")
	}

	return &gormTx{tx: tx}, nil
}

func insert[T any](ctx context.Context, t *gormTx, row *T, operation, details string) error {
	if t.done {
		return ErrTxDone
	}

	return wrapErrorWithDetails(gorm.G[T](t.tx).Create(ctx, row), operation, details)
}

func (t *gormTx) InsertMeta(ctx context.Context, meta *Meta) error {
	return insert(ctx, t, meta, "insert meta", "meta")
}

func (t *gormTx) InsertAuthor(ctx context.Context, author *Author) error {
	return insert(ctx, t, author, "insert author", fmt.Sprintf("name=%q", author.Name))
}

func (t *gormTx) LinkAuthor(ctx context.Context, metaID, authorID uint64) error {
	return insert(
		ctx,
		t,
		&PackageAuthor{MetaID: metaID, AuthorID: authorID},
		"link author",
		fmt.Sprintf("meta=%d, author=%d", metaID, authorID),
	)
}

func (t *gormTx) InsertCapabilities(ctx context.Context, capabilities *Capabilities) error {
	return insert(ctx, t, capabilities, "insert capabilities", "capabilities")
}

func (t *gormTx) InsertWhitelistURL(ctx context.Context, url *WhitelistURL) error {
	return insert(
		ctx,
		t,
		url,
		"insert whitelist url",
		fmt.Sprintf("capabilities=%d, url=%q", url.CapabilitiesID, url.URL),
	)
}

func (t *gormTx) InsertGitInfo(ctx context.Context, gitInfo *GitInfo) error {
	return insert(
		ctx,
		t,
		gitInfo,
		"insert git info",
		fmt.Sprintf("commit=%q", gitInfo.CommitHashShort),
	)
}

func (t *gormTx) InsertRegistry(ctx context.Context, registry *Registry) error {
	return insert(
		ctx,
		t,
		registry,
		"insert registry",
		fmt.Sprintf("hostname=%q, namespace=%q", registry.Hostname, registry.Namespace),
	)
}

func (t *gormTx) InsertSource(ctx context.Context, source *Source) error {
	return insert(ctx, t, source, "insert source", fmt.Sprintf("digest=%q", source.Digest))
}

func (t *gormTx) InsertPackage(ctx context.Context, pkg *Package) error {
	return insert(
		ctx,
		t,
		pkg,
		"insert package",
		fmt.Sprintf("name=%q, meta=%d, source=%d", pkg.Name, pkg.MetaID, pkg.SourceID),
	)
}

func (t *gormTx) InsertIndexEntry(ctx context.Context, entry *IndexEntry) error {
	return insert(
		ctx,
		t,
		entry,
		"insert index entry",
		fmt.Sprintf(
			"registry=%q, namespace=%q, tag=%q",
			entry.Registry,
			entry.Namespace,
			entry.Tag,
		),
	)
}

func (t *gormTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	return wrapErrorWithDetails(t.tx.Commit().Error, "commit transaction", "publish")
}

func (t *gormTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true

	err := t.tx.Rollback().Error
	if errors.Is(err, gorm.ErrInvalidTransaction) {
		return nil
	}

	return wrapErrorWithDetails(err, "rollback transaction", "publish")
}
