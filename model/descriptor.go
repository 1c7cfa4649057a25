// Package model holds the package descriptor accepted by a publish. It is the
// wire shape of the publish request body and carries no persistence behaviour.
package model

// SourceKind tells the embedded and the remote source variants apart
type SourceKind string

const (
	SourceWasm     SourceKind = "wasm"
	SourceRegistry SourceKind = "registry"
)

type Descriptor struct {
	Name         string                  `json:"name"                   validate:"required"`
	AppName      *string                 `json:"app_name,omitempty"`
	AppModule    *string                 `json:"app_module,omitempty"`
	PkgType      string                  `json:"pkg_type"               validate:"required"`
	Meta         MetaDescriptor          `json:"meta"`
	Source       SourceDescriptor        `json:"source"`
	Capabilities *CapabilitiesDescriptor `json:"capabilities,omitempty"`
}

type MetaDescriptor struct {
	Description   *string            `json:"description,omitempty"`
	Documentation *string            `json:"documentation,omitempty"`
	License       *string            `json:"license,omitempty"`
	Repository    *string            `json:"repository,omitempty"`
	Authors       []AuthorDescriptor `json:"authors"                 validate:"dive"`
}

type AuthorDescriptor struct {
	Name  string  `json:"name"            validate:"required"`
	Email *string `json:"email,omitempty"`
}

// SourceDescriptor carries either an embedded wasm blob (optionally with git
// provenance) or a pointer into a remote registry, never both
type SourceDescriptor struct {
	Version  string              `json:"version"            validate:"required"`
	Digest   string              `json:"digest"             validate:"required"`
	Wasm     []byte              `json:"wasm,omitempty"`
	GitInfo  *GitInfoDescriptor  `json:"git_info,omitempty"`
	Registry *RegistryDescriptor `json:"registry,omitempty"`
}

// Kind reports which variant is populated. It returns "" when neither or both
// are.
func (s SourceDescriptor) Kind() SourceKind {
	embedded := len(s.Wasm) > 0
	remote := s.Registry != nil

	switch {
	case embedded && !remote:
		return SourceWasm
	case remote && !embedded:
		return SourceRegistry
	default:
		return ""
	}
}

type GitInfoDescriptor struct {
	CommitHashShort string  `json:"commit_hash_short"`
	CommitsPastTag  *uint64 `json:"commits_past_tag,omitempty"`
	Tag             *string `json:"tag,omitempty"`
	Dirty           bool    `json:"dirty"`
}

type RegistryDescriptor struct {
	RegistryType *string `json:"registry_type,omitempty"`
	Hostname     string  `json:"registry_hostname"       validate:"required"`
	Namespace    string  `json:"namespace"               validate:"required"`
}

type CapabilitiesDescriptor struct {
	Network      bool     `json:"network"`
	Websocket    bool     `json:"websocket"`
	URLWhitelist []string `json:"url_whitelist,omitempty" validate:"dive,required"`
}
