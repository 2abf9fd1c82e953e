// Package constants defines system-wide constants for the apikeyd verification service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Verification Outcome Codes
// ================================================================================

// VerifyCode is the stable code attached to every verification outcome
type VerifyCode string

const (
	// CodeValid indicates the key passed every check
	CodeValid VerifyCode = "VALID"

	// CodeNotFound indicates no live key matched the hashed secret
	CodeNotFound VerifyCode = "NOT_FOUND"

	// CodeDisabled indicates the key exists but is switched off
	CodeDisabled VerifyCode = "DISABLED"

	// CodeExpired indicates the key's expiry is in the past
	CodeExpired VerifyCode = "EXPIRED"

	// CodeForbidden indicates an API pin or IP allowlist mismatch
	CodeForbidden VerifyCode = "FORBIDDEN"

	// CodeRateLimited indicates at least one applicable rate limit was exceeded
	CodeRateLimited VerifyCode = "RATE_LIMITED"

	// CodeUsageExceeded indicates the key ran out of remaining credits
	CodeUsageExceeded VerifyCode = "USAGE_EXCEEDED"

	// CodeInsufficientPermissions indicates the permission query evaluated to false
	CodeInsufficientPermissions VerifyCode = "INSUFFICIENT_PERMISSIONS"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode represents an infrastructure or request-level error code
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates a malformed request body
	ErrCodeInvalidRequest ErrorCode = "BAD_REQUEST"

	// ErrCodeUnauthorized indicates the request carried no key at all
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeDisabledWorkspace indicates the owning or target workspace is disabled or missing
	ErrCodeDisabledWorkspace ErrorCode = "DISABLED_WORKSPACE"

	// ErrCodeInvalidPermissionQuery indicates a permission query that fails schema validation
	ErrCodeInvalidPermissionQuery ErrorCode = "INVALID_PERMISSION_QUERY"

	// ErrCodeMissingRatelimit indicates a named rate limit that cannot be resolved
	ErrCodeMissingRatelimit ErrorCode = "MISSING_RATELIMIT"

	// ErrCodeFetchFailed indicates the verification record could not be loaded
	ErrCodeFetchFailed ErrorCode = "FETCH_FAILED"

	// ErrCodeUsageLimiter indicates the usage limiter store failed
	ErrCodeUsageLimiter ErrorCode = "USAGE_LIMITER_FAILED"

	// ErrCodeServerError indicates an unexpected internal condition
	ErrCodeServerError ErrorCode = "INTERNAL_SERVER_ERROR"

	// ErrCodeServiceUnavailable indicates a dependency is temporarily unavailable
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// ================================================================================
// HTTP Header Constants
// ================================================================================

const (
	// HeaderAuthorization carries "Bearer <secret>"
	HeaderAuthorization = "Authorization"

	// HeaderTrueClientIP is the trusted proxy header carrying the caller IP
	HeaderTrueClientIP = "True-Client-IP"

	// HeaderRegion carries the edge region that received the request
	HeaderRegion = "X-Region"

	// HeaderRequestID carries the request correlation id
	HeaderRequestID = "X-Request-ID"

	// BearerPrefix is the Authorization scheme prefix
	BearerPrefix = "Bearer "
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is used for storing values in context.Context
type ContextKey string

const (
	// ContextKeyRequestID stores the request correlation id
	ContextKeyRequestID ContextKey = "request_id"
)

// ================================================================================
// Cache and Key Prefix Constants
// ================================================================================

const (
	// RateLimitKeyPrefix prefixes every rate-limit window counter in Redis
	RateLimitKeyPrefix = "ratelimit"

	// DefaultCacheFreshTTL is how long a verification record is served without refresh
	DefaultCacheFreshTTL = 1 * time.Minute

	// DefaultCacheStaleTTL is how long a verification record may be served stale
	DefaultCacheStaleTTL = 24 * time.Hour

	// DefaultHashMemoTTL is how long a computed digest is memoized
	DefaultHashMemoTTL = 5 * time.Minute

	// DefaultHashMemoMaxEntries caps the digest memo size
	DefaultHashMemoMaxEntries = 10000
)

// ================================================================================
// Verification Defaults
// ================================================================================

const (
	// DefaultFetchAttempts bounds the uncached fallback fetch
	DefaultFetchAttempts = 3

	// DefaultRatelimitCost is charged when an override names no cost
	DefaultRatelimitCost int64 = 1

	// DefaultRemainingCost is deducted from remaining when no cost is supplied
	DefaultRemainingCost int64 = 1

	// DefaultRatelimitTimeout bounds one multi-limit round trip
	DefaultRatelimitTimeout = 500 * time.Millisecond

	// DefaultUsageLimitTimeout bounds one usage deduction
	DefaultUsageLimitTimeout = 2 * time.Second

	// DefaultQueryTimeout bounds one verification record query
	DefaultQueryTimeout = 3 * time.Second

	// DefaultAnalyticsTimeout bounds one detached analytics emission
	DefaultAnalyticsTimeout = 5 * time.Second
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ServiceName identifies this service in logs, traces and metrics
const ServiceName = "apikeyd"
