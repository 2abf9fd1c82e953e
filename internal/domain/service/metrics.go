package service

import "time"

// Metrics defines the interface for collecting verification metrics.
// Metrics 定义了收集验证指标的接口。
type Metrics interface {
	// RecordVerification records one finished verification and its latency.
	// RecordVerification 记录一次完成的验证及其延迟。
	RecordVerification(code string, duration time.Duration)

	// RecordRateLimitFailOpen records a rate limit check that was let through after a failure.
	// RecordRateLimitFailOpen 记录失败后放行的速率限制检查。
	RecordRateLimitFailOpen()

	// RecordRateLimitRejected records a verification rejected by the named limit.
	// RecordRateLimitRejected 记录被命名限制拒绝的验证。
	RecordRateLimitRejected(name string)

	// RecordUsageDeduction records a usage deduction result.
	// RecordUsageDeduction 记录额度扣减结果。
	RecordUsageDeduction(result string)
}
