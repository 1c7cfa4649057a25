package publish

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAuthority = errors.New("the target reference must name a registry")
	ErrSourceVariant    = errors.New(
		"exactly one of an embedded wasm blob or a registry reference is required",
	)
	ErrGitInfoOnRemote = errors.New("git info is only allowed with an embedded wasm blob")
	ErrDigestMismatch  = errors.New("embedded blob does not match the source digest")
)

// ValidationError is returned before any row is written
type ValidationError struct {
	Field string
	Inner error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Inner.Error())
}

func (e *ValidationError) Unwrap() error {
	return e.Inner
}
