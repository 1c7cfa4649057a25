package registry

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"package-registry/orm"
	"package-registry/reference"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

var (
	// Static errors to avoid err113 violations
	ErrInvalidID     = errors.New("index entry id must be a positive integer")
	ErrEmptyDigest   = errors.New("digest cannot be empty")
	ErrInvalidFilter = errors.New("invalid search filter")
)

// pathReference parses the reference captured by a trailing wildcard route.
// Clients percent-encode it when it carries a scheme.
func pathReference(r *http.Request) (reference.Reference, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return reference.Reference{}, newBadRequestError(
			"Reference is not a valid escaped path",
			fmt.Errorf("%w: %w", reference.ErrInvalidFormat, err),
		)
	}

	ref, err := reference.Parse(raw)
	if err != nil {
		return reference.Reference{}, newBadRequestError(
			fmt.Sprintf("Invalid package reference %q: %s", raw, err.Error()),
			err,
		)
	}

	return ref, nil
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, newBadRequestError(ErrInvalidID.Error(), ErrInvalidID)
	}

	return id, nil
}

func pathDigest(r *http.Request) (string, error) {
	digest, err := url.PathUnescape(chi.URLParam(r, "digest"))
	if err != nil || strings.TrimSpace(digest) == "" {
		return "", newBadRequestError(ErrEmptyDigest.Error(), ErrEmptyDigest)
	}

	return digest, nil
}

// searchQuery reads the search filters from the query string
func searchQuery(r *http.Request) (orm.SearchQuery, error) {
	values := r.URL.Query()
	query := orm.SearchQuery{
		Registry:   values.Get("registry"),
		Namespace:  values.Get("namespace"),
		Repository: values.Get("repository"),
		Tag:        values.Get("tag"),
	}

	// a bare host is accepted and normalized the way references are
	if query.Registry != "" {
		authority, err := reference.ParseAuthority(query.Registry)
		if err != nil {
			return query, newBadRequestError(
				"Invalid registry filter: "+err.Error(),
				fmt.Errorf("%w: %w", ErrInvalidFilter, err),
			)
		}
		query.Registry = authority.String()
	}

	for name, target := range map[string]*bool{
		"include_yanked":     &query.IncludeYanked,
		"include_deprecated": &query.IncludeDeprecated,
	} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return query, newBadRequestError(
				fmt.Sprintf("Invalid %s filter %q", name, raw),
				fmt.Errorf("%w: %w", ErrInvalidFilter, err),
			)
		}
		*target = parsed
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, newBadRequestError(
				fmt.Sprintf("Invalid limit %q", raw),
				ErrInvalidFilter,
			)
		}
		query.Limit = limit
	}

	return query, nil
}
