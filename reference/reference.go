// Package reference parses and renders package references of the form
//
//	[authority/]namespace[/more/namespace]/repository:tag
//
// The authority is optional and is either an IP literal with a port
// (127.0.0.1:5000) or a URL (https://registry.example.com, gcr.io). The tag is
// a semantic version when it parses as one and an opaque keyword otherwise.
//
// Parsing and rendering are pure. Rendering is canonical, so the rendered form
// of a parsed reference always parses back to an equal reference even when the
// input bytes differ (versions normalize, bare hostnames gain a scheme).
package reference

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const defaultScheme = "https"

// AuthorityKind distinguishes the two authority forms
type AuthorityKind int

const (
	AuthorityURL AuthorityKind = iota + 1
	AuthorityHostPort
)

// Authority is the registry endpoint part of a reference. The zero value is
// not a valid authority; absence is expressed with a nil *Authority on
// Reference.
type Authority struct {
	kind     AuthorityKind
	hostPort netip.AddrPort
	scheme   string
	host     string
}

// HostPortAuthority builds an authority from an IP address and port
func HostPortAuthority(addr netip.AddrPort) Authority {
	return Authority{kind: AuthorityHostPort, hostPort: addr}
}

// ParseAuthority parses s as an IP:port pair first and as a URL second. A URL
// without scheme is read as https. Only scheme and host[:port] are allowed;
// user info, path, query or fragment make s invalid.
func ParseAuthority(s string) (Authority, error) {
	if addr, err := netip.ParseAddrPort(s); err == nil {
		return HostPortAuthority(addr), nil
	}

	raw := s
	if !strings.Contains(s, "://") {
		raw = defaultScheme + "://" + s
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Authority{}, fmt.Errorf("%w: authority %q: %w", ErrInvalidFormat, s, err)
	}

	if u.Scheme == "" || u.Hostname() == "" || u.Opaque != "" || u.User != nil ||
		u.Path != "" || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return Authority{}, fmt.Errorf("%w: authority %q", ErrInvalidFormat, s)
	}

	return Authority{kind: AuthorityURL, scheme: u.Scheme, host: u.Host}, nil
}

func (a Authority) Kind() AuthorityKind {
	return a.kind
}

// AddrPort returns the address of a host:port authority
func (a Authority) AddrPort() (netip.AddrPort, bool) {
	return a.hostPort, a.kind == AuthorityHostPort
}

// Scheme returns the scheme of a URL authority, empty for host:port
func (a Authority) Scheme() string {
	return a.scheme
}

// Host returns the host without scheme or port
func (a Authority) Host() string {
	switch a.kind {
	case AuthorityHostPort:
		return a.hostPort.Addr().String()
	case AuthorityURL:
		u := url.URL{Host: a.host}

		return u.Hostname()
	default:
		return ""
	}
}

// String renders 127.0.0.1:5000 or scheme://host[:port]
func (a Authority) String() string {
	switch a.kind {
	case AuthorityHostPort:
		return a.hostPort.String()
	case AuthorityURL:
		return a.scheme + "://" + a.host
	default:
		return ""
	}
}

func (a Authority) Equal(other Authority) bool {
	return a == other
}

// Tag is either a keyword ("latest", "nightly", "18-alpine") or a semantic
// version. There is no fixed keyword list.
type Tag struct {
	keyword string
	version *semver.Version
}

func KeywordTag(keyword string) Tag {
	return Tag{keyword: keyword}
}

func VersionTag(v *semver.Version) Tag {
	return Tag{version: v}
}

// ParseTag tries a semantic version first and falls back to a keyword
func ParseTag(s string) (Tag, error) {
	if s == "" {
		return Tag{}, fmt.Errorf("%w: empty tag", ErrInvalidFormat)
	}

	if v, err := ParseVersion(s); err == nil {
		return VersionTag(v), nil
	}

	return KeywordTag(s), nil
}

func (t Tag) IsVersion() bool {
	return t.version != nil
}

// Version returns the semantic version of a version tag
func (t Tag) Version() (*semver.Version, bool) {
	return t.version, t.version != nil
}

// Keyword returns the keyword of a keyword tag
func (t Tag) Keyword() (string, bool) {
	return t.keyword, t.version == nil
}

// String renders the keyword as is and versions in canonical form
func (t Tag) String() string {
	if t.version != nil {
		return t.version.String()
	}

	return t.keyword
}

func (t Tag) Equal(other Tag) bool {
	if t.IsVersion() != other.IsVersion() {
		return false
	}

	return t.String() == other.String()
}

// Reference identifies a package in a registry
type Reference struct {
	Authority  *Authority
	Namespace  string
	Repository string
	Tag        Tag
}

// New creates a reference without authority
func New(namespace, repository string, tag Tag) Reference {
	return Reference{
		Namespace:  namespace,
		Repository: repository,
		Tag:        tag,
	}
}

// WithAuthority creates a reference pinned to a registry
func WithAuthority(
	authority Authority,
	namespace, repository string,
	tag Tag,
) Reference {
	return Reference{
		Authority:  &authority,
		Namespace:  namespace,
		Repository: repository,
		Tag:        tag,
	}
}

func (r Reference) HasAuthority() bool {
	return r.Authority != nil
}

// FullRepositoryPath returns namespace/repository
func (r Reference) FullRepositoryPath() string {
	return r.Namespace + "/" + r.Repository
}

// AuthorityHost returns the authority host, or "" without authority
func (r Reference) AuthorityHost() string {
	if r.Authority == nil {
		return ""
	}

	return r.Authority.Host()
}

// String renders [authority/]namespace/repository:tag
func (r Reference) String() string {
	var result strings.Builder

	if r.Authority != nil {
		result.WriteString(r.Authority.String())
		result.WriteString("/")
	}

	result.WriteString(r.Namespace)
	result.WriteString("/")
	result.WriteString(r.Repository)
	result.WriteString(":")
	result.WriteString(r.Tag.String())

	return result.String()
}

func (r Reference) Equal(other Reference) bool {
	if r.HasAuthority() != other.HasAuthority() {
		return false
	}
	if r.Authority != nil && !r.Authority.Equal(*other.Authority) {
		return false
	}

	return r.Namespace == other.Namespace &&
		r.Repository == other.Repository &&
		r.Tag.Equal(other.Tag)
}
