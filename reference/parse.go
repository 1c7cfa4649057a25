package reference

import (
	"fmt"
	"strings"
)

const schemeSeparator = "://"

// Parse turns s into a Reference.
//
// An explicit scheme marks everything up to the next "/" as the authority.
// Without one, the first namespace segment is taken as authority when it
// contains a ':' or an inner '.' and parses as such. This means a dotted
// namespace like "my.org/app:1.0.0" is read as registry "https://my.org" with
// no namespace and fails with ErrMissingNamespace.
func Parse(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrInvalidFormat)
	}

	var authority *Authority
	path := s

	if idx := strings.Index(s, schemeSeparator); idx != -1 {
		hostStart := idx + len(schemeSeparator)

		slash := strings.IndexByte(s[hostStart:], '/')
		if slash == -1 {
			return Reference{}, fmt.Errorf(
				"%w: %q has no path after the authority",
				ErrInvalidFormat,
				s,
			)
		}

		end := hostStart + slash
		if parsed, err := ParseAuthority(s[:end]); err == nil {
			authority = &parsed
			path = s[end+1:]
		}
	}

	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return Reference{}, fmt.Errorf(
			"%w: %q needs at least namespace/repository:tag",
			ErrInvalidFormat,
			s,
		)
	}

	last := segments[len(segments)-1]
	segments = segments[:len(segments)-1]

	repository, tag, err := splitRepositoryTag(last)
	if err != nil {
		return Reference{}, err
	}

	if authority == nil && looksLikeAuthority(segments[0]) {
		if parsed, err := ParseAuthority(segments[0]); err == nil {
			authority = &parsed
			segments = segments[1:]
		}
	}

	namespace := strings.Join(segments, "/")
	if namespace == "" {
		return Reference{}, fmt.Errorf("%w: %q", ErrMissingNamespace, s)
	}

	return Reference{
		Authority:  authority,
		Namespace:  namespace,
		Repository: repository,
		Tag:        tag,
	}, nil
}

// MustParse is Parse for references known to be valid. It panics on error.
func MustParse(s string) Reference {
	ref, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return ref
}

func splitRepositoryTag(segment string) (string, Tag, error) {
	if segment == "" {
		return "", Tag{}, ErrMissingRepoOrTag
	}

	if strings.HasPrefix(segment, ":") || strings.HasSuffix(segment, ":") {
		return "", Tag{}, fmt.Errorf("%w: %q is not repository:tag", ErrInvalidFormat, segment)
	}

	repository, tagString, found := strings.Cut(segment, ":")
	if !found || strings.Contains(tagString, ":") {
		return "", Tag{}, fmt.Errorf(
			"%w: %q must contain exactly one ':'",
			ErrInvalidFormat,
			segment,
		)
	}

	tag, err := ParseTag(tagString)
	if err != nil {
		return "", Tag{}, err
	}

	return repository, tag, nil
}

// looksLikeAuthority matches segments with a port or a domain-like dot
func looksLikeAuthority(segment string) bool {
	if strings.Contains(segment, ":") {
		return true
	}

	return strings.Contains(segment, ".") &&
		!strings.HasPrefix(segment, ".") &&
		!strings.HasSuffix(segment, ".")
}
