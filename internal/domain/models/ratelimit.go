package models

import "time"

// MaxRatelimitDurationMs is the longest rate limit window, 30 days.
// MaxRatelimitDurationMs 是最长的限流窗口（30 天）。
const MaxRatelimitDurationMs int64 = 30 * 24 * 60 * 60 * 1000

// MaxRatelimitDuration is MaxRatelimitDurationMs as a time.Duration.
const MaxRatelimitDuration = time.Duration(MaxRatelimitDurationMs) * time.Millisecond

// RatelimitRequest is one limit to evaluate and charge in a multi-limit call.
// RatelimitRequest 是多限制调用中需要评估和扣减的一个限制。
type RatelimitRequest struct {
	Name       string
	Identifier string
	Cost       int64
	Limit      int64
	Duration   time.Duration
}

// RatelimitStatus is the state of one limit after it was charged.
// RatelimitStatus 是一个限制被扣减后的状态。
type RatelimitStatus struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	// Reset is the unix millisecond timestamp at which the current window ends.
	// Reset 是当前窗口结束时的 Unix 毫秒时间戳。
	Reset int64 `json:"reset"`
}

// MultiLimitResult is the outcome of charging several limits at once.
// Passed is true only if every limit passed.
// MultiLimitResult 是一次扣减多个限制的结果。仅当所有限制通过时 Passed 为 true。
type MultiLimitResult struct {
	Passed bool
	Limits []RatelimitStatus
	// Triggered names the first limit that failed, empty when all passed.
	// Triggered 为第一个失败的限制名称，全部通过时为空。
	Triggered string
}

// UsageResult is the outcome of a remaining-credits deduction.
// UsageResult 是剩余额度扣减的结果。
type UsageResult struct {
	Valid     bool
	Remaining int64
}
