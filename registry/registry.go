package registry

import (
	"context"
	"net/http"
	"package-registry/model"
	"package-registry/orm"
	"package-registry/reference"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is the read and maintenance side of the package database.
// *orm.DB implements it.
type Store interface {
	Search(ctx context.Context, query orm.SearchQuery) ([]orm.IndexEntry, error)
	Resolve(ctx context.Context, registry, namespace, repository, tag string) (*orm.IndexEntry, error)
	GetIndexEntry(ctx context.Context, id uint64) (*orm.IndexEntry, error)
	LoadPackage(ctx context.Context, entry *orm.IndexEntry) (*orm.PackageRecord, error)
	Download(ctx context.Context, digest string) ([]byte, error)
	SetYank(ctx context.Context, id uint64, yank bool) error
	SetDeprecated(ctx context.Context, id uint64, deprecated bool) error
	DeleteSourceByDigest(ctx context.Context, digest string) error
	Ping() error
}

// Publisher writes packages. *publish.Coordinator implements it.
type Publisher interface {
	Publish(ctx context.Context, ref reference.Reference, desc model.Descriptor) (uint64, error)
}

var _ http.Handler = (*Server)(nil)

type Server struct {
	router    chi.Router
	db        Store
	publisher Publisher
	blobs     BlobStore
}

// NewServer wires the HTTP surface. blobs may be nil, downloads are then
// served from the database only.
func NewServer(db Store, publisher Publisher, blobs BlobStore) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		db:        db,
		publisher: publisher,
		blobs:     blobs,
	}
	s.routes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(accessLog)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v0", func(r chi.Router) {
		r.Put("/publish/*", s.handlePublish)
		r.Get("/search", s.handleSearch)
		r.Get("/download/{digest}", s.handleDownload)
		r.Get("/packages/*", s.handleGetPackage)

		r.Route("/index/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetIndexEntry)
			r.Put("/yank", s.handleSetYank(true))
			r.Delete("/yank", s.handleSetYank(false))
			r.Put("/deprecated", s.handleSetDeprecated(true))
			r.Delete("/deprecated", s.handleSetDeprecated(false))
		})

		r.Delete("/sources/{digest}", s.handlePurgeSource)
	})
}
