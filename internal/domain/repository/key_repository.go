package repository

import (
	"context"

	"github.com/turtacn/apikeyd/internal/domain/models"
)

// KeyRepository loads verification records from the system of record.
// KeyRepository 从记录系统加载验证记录。
type KeyRepository interface {
	// FindVerificationRecord returns the aggregate for a hashed secret.
	// It returns (nil, nil) when no live key, keyspace or API matches.
	// FindVerificationRecord 返回哈希密钥的聚合；未找到时返回 (nil, nil)。
	FindVerificationRecord(ctx context.Context, hash string) (*models.VerificationRecord, error)
}

// WorkspaceRepository is the narrow workspace lookup used when a record's
// owning workspace failed to resolve.
// WorkspaceRepository 是在记录的所属工作空间未能解析时使用的窄查询。
type WorkspaceRepository interface {
	// FindByID returns (nil, nil) when the workspace does not exist or is deleted.
	FindByID(ctx context.Context, id string) (*models.Workspace, error)
}
