package reference

import "errors"

var (
	// ErrInvalidFormat is returned for structural violations of the
	// [authority/]namespace/repository:tag form
	ErrInvalidFormat = errors.New("invalid format: the identifier format is invalid")
	// ErrMissingNamespace is returned when no path segment is left to serve as
	// namespace
	ErrMissingNamespace = errors.New("missing namespace: namespace is required")
	// ErrMissingRepoOrTag is returned when the repository:tag segment is absent
	ErrMissingRepoOrTag = errors.New(
		"missing repository or tag: repository and tag are required",
	)
)
