package models

import "github.com/turtacn/apikeyd/pkg/constants"

// VerifyKeyResult is the closed set of verification outcomes: NotFoundResult,
// InvalidResult or ValidResult. Business rejections are results, never errors.
// VerifyKeyResult 是验证结果的封闭集合。业务拒绝是结果，而不是错误。
type VerifyKeyResult interface {
	// Code returns the stable outcome code.
	Code() constants.VerifyCode
	// Valid reports whether the key may proceed.
	Valid() bool

	isVerifyKeyResult()
}

// NotFoundResult means no live key matched the secret.
type NotFoundResult struct{}

func (NotFoundResult) Code() constants.VerifyCode { return constants.CodeNotFound }
func (NotFoundResult) Valid() bool                { return false }
func (NotFoundResult) isVerifyKeyResult()         {}

// InvalidResult is a key that resolved but failed one of the checks.
// InvalidResult 表示密钥已解析但未通过某项检查。
type InvalidResult struct {
	Status    constants.VerifyCode
	Message   string
	Key       *Key
	Api       *Api
	Identity  *Identity
	Ratelimit *RatelimitStatus
	Remaining *int64
	// Permissions and Roles are attached once the record resolved, for caller display.
	Permissions []string
	Roles       []string
}

func (r *InvalidResult) Code() constants.VerifyCode { return r.Status }
func (r *InvalidResult) Valid() bool                { return false }
func (r *InvalidResult) isVerifyKeyResult()         {}

// ValidResult is a key that passed every check.
// ValidResult 表示通过所有检查的密钥。
type ValidResult struct {
	Key         *Key
	Api         *Api
	Identity    *Identity
	Permissions []string
	Roles       []string
	// Ratelimits holds every limit evaluated for this call, empty when none applied.
	Ratelimits []RatelimitStatus
	// Remaining is the post-deduction credit count, nil when the key is unlimited.
	Remaining             *int64
	AuthorizedWorkspaceID string
	IsRootKey             bool
}

func (r *ValidResult) Code() constants.VerifyCode { return constants.CodeValid }
func (r *ValidResult) Valid() bool                { return true }
func (r *ValidResult) isVerifyKeyResult()         {}

// Ratelimit returns the status to display for this call: the first evaluated limit.
func (r *ValidResult) Ratelimit() *RatelimitStatus {
	if len(r.Ratelimits) == 0 {
		return nil
	}
	return &r.Ratelimits[0]
}
