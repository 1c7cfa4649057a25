// Package publish writes a package and its registry index entry as one
// transaction. Either the whole graph (meta, authors, capabilities, source,
// package, index entry) becomes visible or nothing does.
package publish

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"package-registry/model"
	"package-registry/orm"
	"package-registry/reference"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog/log"
)

// Store opens write transactions. *orm.DB implements it.
type Store interface {
	Begin(ctx context.Context) (orm.Tx, error)
}

// Mirror receives a copy of every embedded blob after its publish committed
type Mirror interface {
	StoreBlob(ctx context.Context, digest string, content []byte) error
}

type Coordinator struct {
	store    Store
	mirror   Mirror
	timeout  time.Duration
	now      func() time.Time
	validate *validator.Validate
}

type Option func(*Coordinator)

// WithTimeout bounds every publish, including the commit
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithMirror copies embedded blobs to m once a publish has committed.
// Mirror failures are logged and do not fail the publish.
func WithMirror(m Mirror) Option {
	return func(c *Coordinator) {
		c.mirror = m
	}
}

// WithClock replaces time.Now for the index entry timestamp
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Publish stores desc under ref and returns the id of the new index entry.
// Republishing the same (registry, namespace, tag) or the same digest fails
// with *orm.ConflictError and leaves the store untouched.
func (c *Coordinator) Publish(
	ctx context.Context,
	ref reference.Reference,
	desc model.Descriptor,
) (uint64, error) {
	if err := c.Validate(ref, desc); err != nil {
		return 0, err
	}

	publishCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	entryID, err := c.write(publishCtx, ref, desc)
	if err != nil {
		log.Error().
			Err(err).
			Str("reference", ref.String()).
			Str("digest", desc.Source.Digest).
			Msg("publish failed")

		return 0, err
	}

	log.Info().
		Str("reference", ref.String()).
		Str("digest", desc.Source.Digest).
		Uint64("index_entry", entryID).
		Msg("package published")

	if c.mirror != nil && desc.Source.Kind() == model.SourceWasm {
		if err := c.mirror.StoreBlob(ctx, desc.Source.Digest, desc.Source.Wasm); err != nil {
			log.Warn().
				Err(err).
				Str("digest", desc.Source.Digest).
				Msg("failed to mirror blob, downloads fall back to the database")
		}
	}

	return entryID, nil
}

func (c *Coordinator) write(
	ctx context.Context,
	ref reference.Reference,
	desc model.Descriptor,
) (uint64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin publish: %w", err)
	}
	// no-op once committed, also runs when a panic unwinds
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to roll back publish")
		}
	}()

	meta := orm.Meta{
		Description:   desc.Meta.Description,
		Documentation: desc.Meta.Documentation,
		License:       desc.Meta.License,
		Repository:    desc.Meta.Repository,
	}
	if err := tx.InsertMeta(ctx, &meta); err != nil {
		return 0, err
	}

	for _, a := range desc.Meta.Authors {
		author := orm.Author{Name: a.Name, Email: a.Email}
		if err := tx.InsertAuthor(ctx, &author); err != nil {
			return 0, err
		}
		if err := tx.LinkAuthor(ctx, meta.ID, author.ID); err != nil {
			return 0, err
		}
	}

	var capabilitiesID *uint64
	if desc.Capabilities != nil {
		capabilities := orm.Capabilities{
			Network:   desc.Capabilities.Network,
			Websocket: desc.Capabilities.Websocket,
		}
		if err := tx.InsertCapabilities(ctx, &capabilities); err != nil {
			return 0, err
		}

		for _, url := range desc.Capabilities.URLWhitelist {
			err := tx.InsertWhitelistURL(ctx, &orm.WhitelistURL{
				CapabilitiesID: capabilities.ID,
				URL:            url,
			})
			if err != nil {
				return 0, err
			}
		}
		capabilitiesID = &capabilities.ID
	}

	source, err := c.insertSource(ctx, tx, desc.Source)
	if err != nil {
		return 0, err
	}

	pkg := orm.Package{
		Name:           desc.Name,
		AppName:        desc.AppName,
		AppModule:      desc.AppModule,
		PkgType:        desc.PkgType,
		MetaID:         meta.ID,
		SourceID:       source.ID,
		CapabilitiesID: capabilitiesID,
	}
	if err := tx.InsertPackage(ctx, &pkg); err != nil {
		return 0, err
	}

	entry := orm.IndexEntry{
		PackageID:  pkg.ID,
		Registry:   ref.Authority.String(),
		Namespace:  ref.Namespace,
		Repository: ref.Repository,
		Tag:        ref.Tag.String(),
		CreatedAt:  c.now().UTC(),
	}
	if err := tx.InsertIndexEntry(ctx, &entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return entry.ID, nil
}

func (c *Coordinator) insertSource(
	ctx context.Context,
	tx orm.Tx,
	desc model.SourceDescriptor,
) (*orm.Source, error) {
	// validated before the transaction started
	version, err := reference.ParseVersion(desc.Version)
	if err != nil {
		return nil, &ValidationError{Field: "source.version", Inner: err}
	}

	source := &orm.Source{
		SourceType: string(desc.Kind()),
		Version:    version.String(),
		Digest:     desc.Digest,
	}

	switch desc.Kind() {
	case model.SourceWasm:
		if desc.GitInfo != nil {
			gitInfo := orm.GitInfo{
				CommitHashShort: desc.GitInfo.CommitHashShort,
				CommitsPastTag:  desc.GitInfo.CommitsPastTag,
				Tag:             desc.GitInfo.Tag,
				Dirty:           desc.GitInfo.Dirty,
			}
			if err := tx.InsertGitInfo(ctx, &gitInfo); err != nil {
				return nil, err
			}
			source.GitInfoID = &gitInfo.ID
		}
		source.WasmBlob = desc.Wasm
	case model.SourceRegistry:
		registry := orm.Registry{
			RegistryType: desc.Registry.RegistryType,
			Hostname:     desc.Registry.Hostname,
			Namespace:    desc.Registry.Namespace,
		}
		if err := tx.InsertRegistry(ctx, &registry); err != nil {
			return nil, err
		}
		source.RegistryID = &registry.ID
	default:
		return nil, &ValidationError{Field: "source", Inner: ErrSourceVariant}
	}

	if err := tx.InsertSource(ctx, source); err != nil {
		return nil, err
	}

	return source, nil
}

// Validate checks everything that can be checked without the store
func (c *Coordinator) Validate(ref reference.Reference, desc model.Descriptor) error {
	if !ref.HasAuthority() {
		return &ValidationError{Field: "reference", Inner: ErrMissingAuthority}
	}

	if err := c.validate.Struct(desc); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &ValidationError{
				Field: fieldErrs[0].Namespace(),
				Inner: fmt.Errorf("failed on the %q rule", fieldErrs[0].Tag()),
			}
		}

		return &ValidationError{Field: "descriptor", Inner: err}
	}

	if _, err := reference.ParseVersion(desc.Source.Version); err != nil {
		return &ValidationError{Field: "source.version", Inner: err}
	}

	switch desc.Source.Kind() {
	case model.SourceWasm:
		if err := verifyDigest(desc.Source.Digest, desc.Source.Wasm); err != nil {
			return &ValidationError{Field: "source.digest", Inner: err}
		}
	case model.SourceRegistry:
		if desc.Source.GitInfo != nil {
			return &ValidationError{Field: "source.git_info", Inner: ErrGitInfoOnRemote}
		}
	default:
		return &ValidationError{Field: "source", Inner: ErrSourceVariant}
	}

	return nil
}

// verifyDigest checks blobs against well-formed algorithm:hex digests. Other
// digest strings are opaque identifiers and are accepted as is.
func verifyDigest(raw string, blob []byte) error {
	d, err := digest.Parse(raw)
	if err != nil {
		return nil //nolint:nilerr // opaque digest
	}

	if actual := d.Algorithm().FromBytes(blob); actual != d {
		return fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, d, actual)
	}

	return nil
}

// DigestOf returns the canonical sha256 digest of a blob
func DigestOf(blob []byte) string {
	return digest.FromBytes(blob).String()
}
