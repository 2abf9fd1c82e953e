package models

// VerificationEvent is emitted once per verification for analytics.
// VerificationEvent 在每次验证时发出一次，用于分析。
type VerificationEvent struct {
	EventID     string `json:"event_id"`
	RequestID   string `json:"request_id,omitempty"`
	Time        int64  `json:"time"`
	WorkspaceID string `json:"workspace_id"`
	KeySpaceID  string `json:"key_space_id"`
	KeyID       string `json:"key_id"`
	IdentityID  string `json:"identity_id,omitempty"`
	Outcome     string `json:"outcome"`
	Region      string `json:"region"`
}

// KeyChangedEvent announces that a key was updated, disabled or deleted so
// every instance drops its cached verification record.
// KeyChangedEvent 通知密钥已更新、禁用或删除，所有实例据此清除缓存的验证记录。
type KeyChangedEvent struct {
	KeyID   string `json:"key_id"`
	KeyHash string `json:"key_hash"`
	Time    int64  `json:"time"`
}
