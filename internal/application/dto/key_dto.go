package dto

import (
	"encoding/json"

	"github.com/turtacn/apikeyd/internal/domain/rbac"
)

// VerifyKeyRequest 密钥验证请求
type VerifyKeyRequest struct {
	// Key is the raw secret presented by the caller.
	Key string `validate:"required"`
	// APIID, when set, must match the API the key belongs to.
	APIID *string `validate:"omitempty,min=1"`
	// Permissions is an optional query the key's permissions must satisfy.
	Permissions *rbac.Query
	Ratelimits  []RatelimitOverride `validate:"omitempty,dive"`
	// RemainingCost is deducted from the key's credits, 1 when nil.
	RemainingCost *int64 `validate:"omitempty,gte=0"`
	// ClientIP comes from the trusted proxy header, empty when absent.
	ClientIP  string
	Region    string
	RequestID string
}

// RatelimitOverride names a limit to check for this request. With Limit and
// Duration it defines an ad-hoc limit; with only Name it binds to the key's
// configured limit of that name.
// RatelimitOverride 指定本次请求需检查的限制。
type RatelimitOverride struct {
	Name  string `json:"name" validate:"required,slug,max=128"`
	Cost  *int64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Limit *int64 `json:"limit,omitempty" validate:"omitempty,gt=0"`
	// Duration is the window in milliseconds, at most 30 days.
	Duration *int64 `json:"duration,omitempty" validate:"omitempty,gte=1,lte=2592000000"`
}

// VerifyKeyBody 密钥验证 HTTP 请求体
type VerifyKeyBody struct {
	Key         string              `json:"key"`
	APIID       *string             `json:"apiId,omitempty"`
	Permissions json.RawMessage     `json:"permissions,omitempty"`
	Ratelimits  []RatelimitOverride `json:"ratelimits,omitempty"`
	Remaining   *RemainingBody      `json:"remaining,omitempty"`
}

// RemainingBody 额度扣减参数
type RemainingBody struct {
	Cost *int64 `json:"cost,omitempty"`
}
