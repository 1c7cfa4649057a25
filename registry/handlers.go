package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"package-registry/model"
	"package-registry/orm"
	"strconv"

	"github.com/rs/zerolog/log"
)

// maxDescriptorSize bounds a publish body, embedded blob included
const maxDescriptorSize = 64 << 20

type publishResponse struct {
	ID        uint64 `json:"id"`
	Reference string `json:"reference"`
}

type searchResponse struct {
	Entries []orm.IndexEntry `json:"entries"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ref, err := pathReference(r)
	if err != nil {
		writeError(w, r, err, "publish")

		return
	}

	log.Info().Str("reference", ref.String()).Msg("Package publish requested")

	if s.publisher == nil {
		writeError(w, r, newUnavailableError("publish", ErrPublisherNil), "publish")

		return
	}

	var desc model.Descriptor
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDescriptorSize))
	if err := decoder.Decode(&desc); err != nil {
		writeError(w, r, newBadRequestError("Malformed package descriptor: "+err.Error(), err), "publish")

		return
	}

	id, err := s.publisher.Publish(r.Context(), ref, desc)
	if err != nil {
		writeError(w, r, err, "publish")

		return
	}

	writeJSON(w, http.StatusCreated, publishResponse{ID: id, Reference: ref.String()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := searchQuery(r)
	if err != nil {
		writeError(w, r, err, "search")

		return
	}

	log.Info().
		Str("registry", query.Registry).
		Str("namespace", query.Namespace).
		Str("repository", query.Repository).
		Str("tag", query.Tag).
		Msg("Index searched")

	entries, err := s.db.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err, "search")

		return
	}

	if entries == nil {
		entries = []orm.IndexEntry{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Entries: entries})
}

// handleDownload serves the blob from the mirror and falls back to the
// database copy
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	digest, err := pathDigest(r)
	if err != nil {
		writeError(w, r, err, "download")

		return
	}

	log.Info().Str("digest", digest).Msg("Blob download requested")

	var content []byte
	if s.blobs != nil {
		content, err = s.blobs.GetBlob(r.Context(), digest)
		if err != nil && !errors.Is(err, ErrBlobNotFound) {
			log.Warn().Err(err).Str("digest", digest).Msg("Blob mirror read failed")
		}
	}

	if content == nil {
		content, err = s.db.Download(r.Context(), digest)
		if err != nil {
			writeError(w, r, err, "download")

			return
		}
	}

	w.Header().Set("Content-Type", "application/wasm")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		log.Error().Err(err).Str("digest", digest).Msg("Failed to send blob")
	}
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	ref, err := pathReference(r)
	if err != nil {
		writeError(w, r, err, "package lookup")

		return
	}

	if !ref.HasAuthority() {
		writeError(
			w,
			r,
			newBadRequestError("Package lookup needs a reference with a registry", nil),
			"package lookup",
		)

		return
	}

	entry, err := s.db.Resolve(
		r.Context(),
		ref.Authority.String(),
		ref.Namespace,
		ref.Repository,
		ref.Tag.String(),
	)
	if err != nil {
		writeError(w, r, err, "package lookup")

		return
	}

	record, err := s.db.LoadPackage(r.Context(), entry)
	if err != nil {
		writeError(w, r, err, "package lookup")

		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetIndexEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err, "index lookup")

		return
	}

	entry, err := s.db.GetIndexEntry(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "index lookup")

		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSetYank(yank bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err, "yank")

			return
		}

		if err := s.db.SetYank(r.Context(), id, yank); err != nil {
			writeError(w, r, err, "yank")

			return
		}

		log.Info().Uint64("index_entry", id).Bool("yank", yank).Msg("Index entry yank updated")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleSetDeprecated(deprecated bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err, "deprecate")

			return
		}

		if err := s.db.SetDeprecated(r.Context(), id, deprecated); err != nil {
			writeError(w, r, err, "deprecate")

			return
		}

		log.Info().
			Uint64("index_entry", id).
			Bool("deprecated", deprecated).
			Msg("Index entry deprecation updated")
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePurgeSource removes a source with its package and index entries, then
// drops the mirrored blob
func (s *Server) handlePurgeSource(w http.ResponseWriter, r *http.Request) {
	digest, err := pathDigest(r)
	if err != nil {
		writeError(w, r, err, "purge")

		return
	}

	if err := s.db.DeleteSourceByDigest(r.Context(), digest); err != nil {
		writeError(w, r, err, "purge")

		return
	}

	if s.blobs != nil {
		err := s.blobs.DeleteBlob(r.Context(), digest)
		if err != nil && !errors.Is(err, ErrBlobNotFound) {
			log.Warn().Err(err).Str("digest", digest).Msg("Failed to delete mirrored blob")
		}
	}

	log.Info().Str("digest", digest).Msg("Source purged")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(
			w,
			r,
			newUnavailableError("health check", fmt.Errorf("%w: %w", ErrDatabaseDown, err)),
			"health check",
		)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
