package models

import "time"

// RateLimitConfig is the effective configuration of one named limit.
// RateLimitConfig 是一个命名限制的有效配置。
type RateLimitConfig struct {
	Name      string `json:"name"`
	Limit     int64  `json:"limit"`
	Duration  int64  `json:"duration"`
	AutoApply bool   `json:"autoApply"`
}

// Window returns the limit's window length, capped at MaxRatelimitDuration.
func (c RateLimitConfig) Window() time.Duration {
	if c.Duration > MaxRatelimitDurationMs {
		return MaxRatelimitDuration
	}
	return time.Duration(c.Duration) * time.Millisecond
}

// VerificationRecord is the denormalized aggregate loaded for one hashed secret.
// It is shared through the cache and must be treated as read-only; use
// WithOwningWorkspace to derive a patched copy.
// VerificationRecord 是为一个哈希密钥加载的非规范化聚合，通过缓存共享，必须视为只读。
type VerificationRecord struct {
	Key Key
	Api Api
	// OwningWorkspace is nil when the key's workspace row did not resolve.
	// OwningWorkspace 在密钥所属工作空间行未能解析时为 nil。
	OwningWorkspace *Workspace
	// ForWorkspace is nil unless the key is a root key and its target workspace resolved.
	// ForWorkspace 仅当密钥为根密钥且目标工作空间已解析时非 nil。
	ForWorkspace *Workspace
	Identity     *Identity
	// Permissions is the sorted, deduplicated union of direct and role-derived slugs.
	// Permissions 是直接权限与角色权限的有序去重并集。
	Permissions []string
	Roles       []string
	// Ratelimits maps limit name to config; key-level rows override identity-level rows.
	// Ratelimits 按名称映射限制配置；密钥级配置覆盖身份级配置。
	Ratelimits map[string]RateLimitConfig
}

// WithOwningWorkspace returns a shallow copy of r with the owning workspace replaced.
func (r *VerificationRecord) WithOwningWorkspace(ws *Workspace) *VerificationRecord {
	patched := *r
	patched.OwningWorkspace = ws
	return &patched
}

// RatelimitIdentifier scopes rate limiting to the identity when the key has one.
func (r *VerificationRecord) RatelimitIdentifier() string {
	if r.Identity != nil {
		return r.Identity.ID
	}
	return r.Key.ID
}
