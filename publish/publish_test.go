//nolint
package publish

import (
	"context"
	"errors"
	"package-registry/model"
	"package-registry/orm"
	"package-registry/reference"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ErrStorageError is a test error for store operations
var ErrStorageError = errors.New("storage error")

// MockStore is a mock implementation of the Store interface for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Begin(ctx context.Context) (orm.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(orm.Tx)

	return tx, args.Error(1)
}

// MockTx hands out increasing ids for every successful insert
type MockTx struct {
	mock.Mock
	nextID uint64
}

func (m *MockTx) assign(id *uint64, args mock.Arguments) error {
	if err := args.Error(0); err != nil {
		return err
	}
	m.nextID++
	*id = m.nextID

	return nil
}

func (m *MockTx) InsertMeta(ctx context.Context, meta *orm.Meta) error {
	return m.assign(&meta.ID, m.Called(ctx, meta))
}

func (m *MockTx) InsertAuthor(ctx context.Context, author *orm.Author) error {
	return m.assign(&author.ID, m.Called(ctx, author))
}

func (m *MockTx) LinkAuthor(ctx context.Context, metaID, authorID uint64) error {
	return m.Called(ctx, metaID, authorID).Error(0)
}

func (m *MockTx) InsertCapabilities(ctx context.Context, capabilities *orm.Capabilities) error {
	return m.assign(&capabilities.ID, m.Called(ctx, capabilities))
}

func (m *MockTx) InsertWhitelistURL(ctx context.Context, url *orm.WhitelistURL) error {
	return m.assign(&url.ID, m.Called(ctx, url))
}

func (m *MockTx) InsertGitInfo(ctx context.Context, gitInfo *orm.GitInfo) error {
	return m.assign(&gitInfo.ID, m.Called(ctx, gitInfo))
}

func (m *MockTx) InsertRegistry(ctx context.Context, registry *orm.Registry) error {
	return m.assign(&registry.ID, m.Called(ctx, registry))
}

func (m *MockTx) InsertSource(ctx context.Context, source *orm.Source) error {
	return m.assign(&source.ID, m.Called(ctx, source))
}

func (m *MockTx) InsertPackage(ctx context.Context, pkg *orm.Package) error {
	return m.assign(&pkg.ID, m.Called(ctx, pkg))
}

func (m *MockTx) InsertIndexEntry(ctx context.Context, entry *orm.IndexEntry) error {
	return m.assign(&entry.ID, m.Called(ctx, entry))
}

func (m *MockTx) Commit() error {
	return m.Called().Error(0)
}

func (m *MockTx) Rollback() error {
	return m.Called().Error(0)
}

// MockMirror records mirrored blobs
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) StoreBlob(ctx context.Context, digest string, content []byte) error {
	return m.Called(ctx, digest, content).Error(0)
}

func ptr[T any](v T) *T {
	return &v
}

var testBlob = []byte("\x00asm\x01\x00\x00\x00")

func validDescriptor() model.Descriptor {
	return model.Descriptor{
		Name:    "app",
		PkgType: "wasm",
		Meta: model.MetaDescriptor{
			Description: ptr("demo package"),
			License:     ptr("MIT"),
			Authors: []model.AuthorDescriptor{
				{Name: "Ada"},
				{Name: "Grace", Email: ptr("grace@example.com")},
			},
		},
		Source: model.SourceDescriptor{
			Version: "1.0.0",
			Digest:  DigestOf(testBlob),
			Wasm:    testBlob,
			GitInfo: &model.GitInfoDescriptor{CommitHashShort: "abc1234"},
		},
		Capabilities: &model.CapabilitiesDescriptor{
			Network:      true,
			URLWhitelist: []string{"https://api.example.com", "https://cdn.example.com"},
		},
	}
}

func remoteDescriptor() model.Descriptor {
	desc := validDescriptor()
	desc.Source.Wasm = nil
	desc.Source.GitInfo = nil
	desc.Source.Digest = "sha256:" + "ab"
	desc.Source.Registry = &model.RegistryDescriptor{
		Hostname:  "mirror.example.com",
		Namespace: "upstream",
	}

	return desc
}

var testRef = reference.MustParse("registry.example.com/team/app:1.0.0")

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      reference.Reference
		mutate   func(*model.Descriptor)
		field    string
		expected error
	}{
		{
			name:     "reference without authority",
			ref:      reference.MustParse("team/app:1.0.0"),
			mutate:   func(*model.Descriptor) {},
			field:    "reference",
			expected: ErrMissingAuthority,
		},
		{
			name:   "empty name",
			ref:    testRef,
			mutate: func(d *model.Descriptor) { d.Name = "" },
			field:  "Descriptor.Name",
		},
		{
			name:   "empty package type",
			ref:    testRef,
			mutate: func(d *model.Descriptor) { d.PkgType = "" },
			field:  "Descriptor.PkgType",
		},
		{
			name:   "empty author name",
			ref:    testRef,
			mutate: func(d *model.Descriptor) { d.Meta.Authors[1].Name = "" },
			field:  "Descriptor.Meta.Authors[1].Name",
		},
		{
			name:   "empty whitelist url",
			ref:    testRef,
			mutate: func(d *model.Descriptor) { d.Capabilities.URLWhitelist[0] = "" },
			field:  "Descriptor.Capabilities.URLWhitelist[0]",
		},
		{
			name:   "empty digest",
			ref:    testRef,
			mutate: func(d *model.Descriptor) { d.Source.Digest = "" },
			field:  "Descriptor.Source.Digest",
		},
		{
			name:     "short version",
			ref:      testRef,
			mutate:   func(d *model.Descriptor) { d.Source.Version = "1.0" },
			field:    "source.version",
			expected: reference.ErrInvalidVersion,
		},
		{
			name:     "no source variant",
			ref:      testRef,
			mutate:   func(d *model.Descriptor) { d.Source.Wasm = nil },
			field:    "source",
			expected: ErrSourceVariant,
		},
		{
			name: "both source variants",
			ref:  testRef,
			mutate: func(d *model.Descriptor) {
				d.Source.Registry = &model.RegistryDescriptor{Hostname: "h", Namespace: "n"}
			},
			field:    "source",
			expected: ErrSourceVariant,
		},
		{
			name: "git info on a remote source",
			ref:  testRef,
			mutate: func(d *model.Descriptor) {
				*d = remoteDescriptor()
				d.Source.GitInfo = &model.GitInfoDescriptor{CommitHashShort: "abc"}
			},
			field:    "source.git_info",
			expected: ErrGitInfoOnRemote,
		},
		{
			name: "blob does not match digest",
			ref:  testRef,
			mutate: func(d *model.Descriptor) {
				d.Source.Digest = DigestOf([]byte("something else"))
			},
			field:    "source.digest",
			expected: ErrDigestMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := new(MockStore)
			coordinator := NewCoordinator(store)

			desc := validDescriptor()
			tt.mutate(&desc)

			_, err := coordinator.Publish(context.Background(), tt.ref, desc)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			}

			store.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}

	t.Run("opaque digests are not verified", func(t *testing.T) {
		t.Parallel()

		desc := validDescriptor()
		desc.Source.Digest = "my-build-42"

		assert.NoError(t, NewCoordinator(new(MockStore)).Validate(testRef, desc))
	})

	t.Run("remote source", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, NewCoordinator(new(MockStore)).Validate(testRef, remoteDescriptor()))
	})
}

func expectFullWrite(tx *MockTx, desc model.Descriptor) {
	tx.On("InsertMeta", mock.Anything, mock.AnythingOfType("*orm.Meta")).Return(nil).Once()
	tx.On("InsertAuthor", mock.Anything, mock.AnythingOfType("*orm.Author")).
		Return(nil).
		Times(len(desc.Meta.Authors))
	tx.On("LinkAuthor", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Times(len(desc.Meta.Authors))
	tx.On("InsertCapabilities", mock.Anything, mock.AnythingOfType("*orm.Capabilities")).
		Return(nil).
		Once()
	tx.On("InsertWhitelistURL", mock.Anything, mock.AnythingOfType("*orm.WhitelistURL")).
		Return(nil).
		Times(len(desc.Capabilities.URLWhitelist))
	tx.On("InsertGitInfo", mock.Anything, mock.AnythingOfType("*orm.GitInfo")).Return(nil).Once()
	tx.On("InsertSource", mock.Anything, mock.AnythingOfType("*orm.Source")).Return(nil).Once()
	tx.On("InsertPackage", mock.Anything, mock.AnythingOfType("*orm.Package")).Return(nil).Once()
	tx.On("InsertIndexEntry", mock.Anything, mock.AnythingOfType("*orm.IndexEntry")).
		Return(nil).
		Once()
}

func TestPublishWithMocks(t *testing.T) {
	t.Parallel()

	t.Run("success commits once", func(t *testing.T) {
		t.Parallel()

		desc := validDescriptor()
		tx := new(MockTx)
		expectFullWrite(tx, desc)
		tx.On("Commit").Return(nil).Once()
		tx.On("Rollback").Return(nil).Once()

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(tx, nil).Once()

		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		coordinator := NewCoordinator(store, WithClock(func() time.Time { return now }))

		id, err := coordinator.Publish(context.Background(), testRef, desc)
		require.NoError(t, err)
		assert.NotZero(t, id)

		tx.AssertExpectations(t)
		store.AssertExpectations(t)

		entry := tx.Calls[len(tx.Calls)-3].Arguments.Get(1).(*orm.IndexEntry)
		assert.Equal(t, "https://registry.example.com", entry.Registry)
		assert.Equal(t, "team", entry.Namespace)
		assert.Equal(t, "app", entry.Repository)
		assert.Equal(t, "1.0.0", entry.Tag)
		assert.False(t, entry.Yank)
		assert.False(t, entry.Deprecated)
		assert.Equal(t, now, entry.CreatedAt)
		assert.Equal(t, id, entry.ID)
	})

	t.Run("failure rolls back without commit", func(t *testing.T) {
		t.Parallel()

		tx := new(MockTx)
		tx.On("InsertMeta", mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertAuthor", mock.Anything, mock.Anything).Return(nil)
		tx.On("LinkAuthor", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertCapabilities", mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertWhitelistURL", mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertGitInfo", mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertSource", mock.Anything, mock.Anything).
			Return(&orm.ConflictError{Operation: "insert source", Key: "digest=sha256:ab"})
		tx.On("Rollback").Return(nil).Once()

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(tx, nil)

		_, err := NewCoordinator(store).Publish(context.Background(), testRef, validDescriptor())

		var conflictErr *orm.ConflictError
		require.ErrorAs(t, err, &conflictErr)

		tx.AssertExpectations(t)
		tx.AssertNotCalled(t, "Commit")
		tx.AssertNotCalled(t, "InsertPackage", mock.Anything, mock.Anything)
		tx.AssertNotCalled(t, "InsertIndexEntry", mock.Anything, mock.Anything)
	})

	t.Run("begin failure", func(t *testing.T) {
		t.Parallel()

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(nil, ErrStorageError)

		_, err := NewCoordinator(store).Publish(context.Background(), testRef, validDescriptor())
		assert.ErrorIs(t, err, ErrStorageError)
	})

	t.Run("panic still rolls back", func(t *testing.T) {
		t.Parallel()

		tx := new(MockTx)
		tx.On("InsertMeta", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			panic("boom")
		})
		tx.On("Rollback").Return(nil).Once()

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(tx, nil)

		assert.Panics(t, func() {
			_, _ = NewCoordinator(store).Publish(context.Background(), testRef, validDescriptor())
		})
		tx.AssertExpectations(t)
	})

	t.Run("remote source inserts the registry", func(t *testing.T) {
		t.Parallel()

		desc := remoteDescriptor()
		desc.Capabilities = nil

		tx := new(MockTx)
		tx.On("InsertMeta", mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertAuthor", mock.Anything, mock.Anything).Return(nil)
		tx.On("LinkAuthor", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		tx.On("InsertRegistry", mock.Anything, mock.MatchedBy(func(r *orm.Registry) bool {
			return r.Hostname == "mirror.example.com" && r.Namespace == "upstream"
		})).Return(nil).Once()
		tx.On("InsertSource", mock.Anything, mock.MatchedBy(func(s *orm.Source) bool {
			return s.SourceType == "registry" && s.RegistryID != nil && s.WasmBlob == nil
		})).Return(nil).Once()
		tx.On("InsertPackage", mock.Anything, mock.MatchedBy(func(p *orm.Package) bool {
			return p.CapabilitiesID == nil
		})).Return(nil).Once()
		tx.On("InsertIndexEntry", mock.Anything, mock.Anything).Return(nil)
		tx.On("Commit").Return(nil)
		tx.On("Rollback").Return(nil)

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(tx, nil)

		mirror := new(MockMirror)
		coordinator := NewCoordinator(store, WithMirror(mirror))

		_, err := coordinator.Publish(context.Background(), testRef, desc)
		require.NoError(t, err)

		tx.AssertExpectations(t)
		tx.AssertNotCalled(t, "InsertGitInfo", mock.Anything, mock.Anything)
		tx.AssertNotCalled(t, "InsertCapabilities", mock.Anything, mock.Anything)
		mirror.AssertNotCalled(t, "StoreBlob", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mirror failure does not fail the publish", func(t *testing.T) {
		t.Parallel()

		desc := validDescriptor()
		tx := new(MockTx)
		expectFullWrite(tx, desc)
		tx.On("Commit").Return(nil)
		tx.On("Rollback").Return(nil)

		store := new(MockStore)
		store.On("Begin", mock.Anything).Return(tx, nil)

		mirror := new(MockMirror)
		mirror.On("StoreBlob", mock.Anything, desc.Source.Digest, desc.Source.Wasm).
			Return(ErrStorageError).
			Once()

		_, err := NewCoordinator(store, WithMirror(mirror)).
			Publish(context.Background(), testRef, desc)
		require.NoError(t, err)
		mirror.AssertExpectations(t)
	})
}
