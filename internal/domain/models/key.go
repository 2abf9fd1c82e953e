// Package models defines the domain models for the apikeyd verification service.
// This file contains the persisted entities the verification core reads.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Workspace is the tenant boundary every key, API and identity belongs to.
// Workspace 是每个密钥、API 和身份所属的租户边界。
type Workspace struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Workspace) TableName() string { return "workspaces" }

// Api is the resource namespace a keyspace belongs to.
// Api 是密钥空间所属的资源命名空间。
type Api struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"index"`
	Name        string
	// IPWhitelist is a comma-separated list of IPs and CIDR ranges. Nil means no restriction.
	// IPWhitelist 是以逗号分隔的 IP 和 CIDR 列表。nil 表示不限制。
	IPWhitelist *string
	CreatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Api) TableName() string { return "apis" }

// KeyAuth is the keyspace: a collection of keys tied 1:1 to an API.
// KeyAuth 是密钥空间：与 API 一一对应的密钥集合。
type KeyAuth struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string `gorm:"index"`
	ApiID       string `gorm:"uniqueIndex"`
	CreatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (KeyAuth) TableName() string { return "key_auth" }

// Key represents one issued credential. Only the SHA-256 digest of the secret is stored.
// Key 代表一个已颁发的凭证。仅存储密钥的 SHA-256 摘要。
type Key struct {
	ID string `gorm:"primaryKey"`
	// Hash is the lowercase hex SHA-256 digest of the secret.
	// Hash 是密钥的小写十六进制 SHA-256 摘要。
	Hash        string `gorm:"uniqueIndex"`
	Start       string
	WorkspaceID string `gorm:"index"`
	// ForWorkspaceID is set on root keys issued on behalf of another workspace.
	// ForWorkspaceID 在代表其他工作空间颁发的根密钥上设置。
	ForWorkspaceID *string
	KeyAuthID      string `gorm:"index"`
	Name           *string
	OwnerID        *string
	IdentityID     *string `gorm:"index"`
	Meta           *string
	Enabled        bool
	Expires        *time.Time
	// Remaining is the number of verifications left. Nil means unlimited.
	// Remaining 是剩余的验证次数。nil 表示无限制。
	Remaining *int64
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (Key) TableName() string { return "keys" }

// IsRootKey reports whether the key acts on behalf of another workspace.
func (k *Key) IsRootKey() bool {
	return k.ForWorkspaceID != nil
}

// AuthorizedWorkspaceID is the workspace the key may act on.
func (k *Key) AuthorizedWorkspaceID() string {
	if k.ForWorkspaceID != nil {
		return *k.ForWorkspaceID
	}
	return k.WorkspaceID
}

// Identity is an owner abstraction shared by several keys.
// Identity 是由多个密钥共享的所有者抽象。
type Identity struct {
	ID          string `gorm:"primaryKey"`
	ExternalID  string `gorm:"index"`
	WorkspaceID string `gorm:"index"`
	Meta        *string
	CreatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (Identity) TableName() string { return "identities" }

// RateLimit is a named limit attached to either a key or an identity.
// RateLimit 是附加到密钥或身份上的命名限制。
type RateLimit struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string
	Name        string
	Limit       int64 `gorm:"column:limit_value"`
	// Duration is the window length in milliseconds.
	// Duration 是窗口长度（毫秒）。
	Duration   int64
	AutoApply  bool
	KeyID      *string `gorm:"index"`
	IdentityID *string `gorm:"index"`
}

func (RateLimit) TableName() string { return "ratelimits" }

// Role groups permissions.
type Role struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string
	Name        string
}

func (Role) TableName() string { return "roles" }

// Permission is identified by its slug, e.g. "documents.read".
type Permission struct {
	ID          string `gorm:"primaryKey"`
	WorkspaceID string
	Slug        string
}

func (Permission) TableName() string { return "permissions" }

// KeyRole attaches a role to a key.
type KeyRole struct {
	KeyID  string `gorm:"primaryKey"`
	RoleID string `gorm:"primaryKey"`
}

func (KeyRole) TableName() string { return "keys_roles" }

// KeyPermission attaches a permission directly to a key.
type KeyPermission struct {
	KeyID        string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
}

func (KeyPermission) TableName() string { return "keys_permissions" }

// RolePermission attaches a permission to a role.
type RolePermission struct {
	RoleID       string `gorm:"primaryKey"`
	PermissionID string `gorm:"primaryKey"`
}

func (RolePermission) TableName() string { return "roles_permissions" }

// AllTables lists every entity in dependency order, for AutoMigrate in tests and tooling.
func AllTables() []interface{} {
	return []interface{}{
		&Workspace{}, &Api{}, &KeyAuth{}, &Identity{}, &Key{},
		&RateLimit{}, &Role{}, &Permission{},
		&KeyRole{}, &KeyPermission{}, &RolePermission{},
	}
}
