package dto

import (
	"encoding/json"

	"github.com/turtacn/apikeyd/internal/domain/models"
)

// VerifyKeyResponse 密钥验证响应
type VerifyKeyResponse struct {
	Valid                 bool                     `json:"valid"`
	Code                  string                   `json:"code"`
	Message               string                   `json:"message,omitempty"`
	KeyID                 string                   `json:"keyId,omitempty"`
	Name                  *string                  `json:"name,omitempty"`
	OwnerID               *string                  `json:"ownerId,omitempty"`
	Meta                  json.RawMessage          `json:"meta,omitempty"`
	Expires               *int64                   `json:"expires,omitempty"`
	Remaining             *int64                   `json:"remaining,omitempty"`
	Ratelimit             *models.RatelimitStatus  `json:"ratelimit,omitempty"`
	Ratelimits            []models.RatelimitStatus `json:"ratelimits,omitempty"`
	Enabled               *bool                    `json:"enabled,omitempty"`
	Permissions           []string                 `json:"permissions,omitempty"`
	Roles                 []string                 `json:"roles,omitempty"`
	Identity              *IdentityResponse        `json:"identity,omitempty"`
	AuthorizedWorkspaceID string                   `json:"authorizedWorkspaceId,omitempty"`
	IsRootKey             bool                     `json:"isRootKey,omitempty"`
}

// IdentityResponse 身份信息
type IdentityResponse struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"externalId"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// NewVerifyKeyResponse renders a verification result for the wire.
func NewVerifyKeyResponse(result models.VerifyKeyResult) *VerifyKeyResponse {
	resp := &VerifyKeyResponse{
		Valid: result.Valid(),
		Code:  string(result.Code()),
	}

	switch r := result.(type) {
	case *models.ValidResult:
		resp.fillKey(r.Key)
		resp.Identity = newIdentityResponse(r.Identity)
		resp.Permissions = r.Permissions
		resp.Roles = r.Roles
		resp.Remaining = r.Remaining
		resp.Ratelimit = r.Ratelimit()
		resp.Ratelimits = r.Ratelimits
		resp.AuthorizedWorkspaceID = r.AuthorizedWorkspaceID
		resp.IsRootKey = r.IsRootKey
	case *models.InvalidResult:
		resp.Message = r.Message
		resp.fillKey(r.Key)
		resp.Identity = newIdentityResponse(r.Identity)
		resp.Permissions = r.Permissions
		resp.Roles = r.Roles
		resp.Remaining = r.Remaining
		resp.Ratelimit = r.Ratelimit
	}
	return resp
}

func (resp *VerifyKeyResponse) fillKey(key *models.Key) {
	if key == nil {
		return
	}
	enabled := key.Enabled
	resp.KeyID = key.ID
	resp.Name = key.Name
	resp.OwnerID = key.OwnerID
	resp.Meta = rawJSON(key.Meta)
	resp.Enabled = &enabled
	if key.Expires != nil {
		ms := key.Expires.UnixMilli()
		resp.Expires = &ms
	}
}

func newIdentityResponse(identity *models.Identity) *IdentityResponse {
	if identity == nil {
		return nil
	}
	return &IdentityResponse{
		ID:         identity.ID,
		ExternalID: identity.ExternalID,
		Meta:       rawJSON(identity.Meta),
	}
}

// rawJSON passes stored metadata through only when it is valid JSON.
func rawJSON(s *string) json.RawMessage {
	if s == nil || !json.Valid([]byte(*s)) {
		return nil
	}
	return json.RawMessage(*s)
}
