package orm

import (
	"time"
)

// Relationship pointers (Meta, Source, ...) only declare foreign key
// constraints for AutoMigrate. They are never preloaded; reads go through the
// ID fields.

type Author struct {
	ID    uint64  `gorm:"primaryKey"           json:"id"`
	Name  string  `gorm:"not null"             json:"name"`
	Email *string `gorm:"type:text"            json:"email,omitempty"`
}

func (Author) TableName() string { return "authors" }

type Registry struct {
	ID           uint64  `gorm:"primaryKey"                                json:"id"`
	RegistryType *string `gorm:"type:text"                                 json:"registryType,omitempty"`
	Hostname     string  `gorm:"not null;uniqueIndex:idx_registries_unique" json:"hostname"`
	Namespace    string  `gorm:"not null;uniqueIndex:idx_registries_unique" json:"namespace"`
}

func (Registry) TableName() string { return "registries" }

type GitInfo struct {
	ID              uint64  `gorm:"primaryKey" json:"id"`
	CommitHashShort string  `gorm:"not null"   json:"commitHashShort"`
	CommitsPastTag  *uint64 `                  json:"commitsPastTag,omitempty"`
	Tag             *string `gorm:"type:text"  json:"tag,omitempty"`
	Dirty           bool    `gorm:"not null"   json:"dirty"`
}

func (GitInfo) TableName() string { return "git_info" }

type Capabilities struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	Network   bool   `gorm:"not null"   json:"network"`
	Websocket bool   `gorm:"not null"   json:"websocket"`
}

func (Capabilities) TableName() string { return "capabilities" }

type WhitelistURL struct {
	ID             uint64 `gorm:"primaryKey"                  json:"id"`
	CapabilitiesID uint64 `gorm:"not null;index"              json:"capabilitiesId"`
	URL            string `gorm:"column:url;not null"         json:"url"`

	Capabilities *Capabilities `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (WhitelistURL) TableName() string { return "url_whitelist" }

type Source struct {
	ID         uint64  `gorm:"primaryKey"                              json:"id"`
	SourceType string  `gorm:"not null;size:16"                        json:"sourceType"`
	Version    string  `gorm:"not null"                                json:"version"`
	Digest     string  `gorm:"not null;uniqueIndex:idx_sources_digest" json:"digest"`
	WasmBlob   []byte  `                                               json:"-"`
	GitInfoID  *uint64 `gorm:"index"                                   json:"gitInfoId,omitempty"`
	RegistryID *uint64 `gorm:"index"                                   json:"registryId,omitempty"`

	GitInfo  *GitInfo  `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Registry *Registry `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (Source) TableName() string { return "sources" }

type Meta struct {
	ID            uint64  `gorm:"primaryKey" json:"id"`
	Description   *string `gorm:"type:text"  json:"description,omitempty"`
	Documentation *string `gorm:"type:text"  json:"documentation,omitempty"`
	License       *string `gorm:"type:text"  json:"license,omitempty"`
	Repository    *string `gorm:"type:text"  json:"repository,omitempty"`
}

func (Meta) TableName() string { return "meta" }

// PackageAuthor links a Meta to its authors
type PackageAuthor struct {
	MetaID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	AuthorID uint64 `gorm:"primaryKey;autoIncrement:false;index"`

	Meta   *Meta   `gorm:"constraint:OnDelete:CASCADE"`
	Author *Author `gorm:"constraint:OnDelete:CASCADE"`
}

func (PackageAuthor) TableName() string { return "package_authors" }

type Package struct {
	ID             uint64  `gorm:"primaryKey"     json:"id"`
	Name           string  `gorm:"not null"       json:"name"`
	AppName        *string `gorm:"type:text"      json:"appName,omitempty"`
	AppModule      *string `gorm:"type:text"      json:"appModule,omitempty"`
	PkgType        string  `gorm:"not null"       json:"pkgType"`
	MetaID         uint64  `gorm:"not null;index" json:"metaId"`
	SourceID       uint64  `gorm:"not null;index" json:"sourceId"`
	CapabilitiesID *uint64 `gorm:"index"          json:"capabilitiesId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Meta         *Meta         `gorm:"constraint:OnDelete:CASCADE"  json:"-"`
	Source       *Source       `gorm:"constraint:OnDelete:CASCADE"  json:"-"`
	Capabilities *Capabilities `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (Package) TableName() string { return "packages" }

// IndexEntry makes a package discoverable under (registry, namespace, tag)
type IndexEntry struct {
	ID         uint64    `gorm:"primaryKey"                                                                   json:"id"`
	PackageID  uint64    `gorm:"column:pkg_id;not null;index"                                                 json:"packageId"`
	Registry   string    `gorm:"not null;uniqueIndex:idx_unique_package_identity,priority:1"                  json:"registry"`
	Namespace  string    `gorm:"not null;uniqueIndex:idx_unique_package_identity,priority:2;index:idx_namespace_listing" json:"namespace"`
	Repository string    `gorm:"not null;index:idx_repository_lookup"                                         json:"repository"`
	Tag        string    `gorm:"not null;uniqueIndex:idx_unique_package_identity,priority:3"                  json:"tag"`
	Yank       bool      `gorm:"not null;index:idx_available_packages,priority:1"                             json:"yank"`
	Deprecated bool      `gorm:"not null;index:idx_available_packages,priority:2"                             json:"deprecated"`
	CreatedAt  time.Time `gorm:"not null;index:idx_available_packages,priority:3"                             json:"createdAt"`

	Package *Package `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE" json:"-"`
}

func (IndexEntry) TableName() string { return "registry_index" }

// models lists every table in dependency order
func models() []any {
	return []any{
		&Author{},
		&Registry{},
		&GitInfo{},
		&Capabilities{},
		&WhitelistURL{},
		&Source{},
		&Meta{},
		&PackageAuthor{},
		&Package{},
		&IndexEntry{},
	}
}
