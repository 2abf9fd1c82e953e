package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/repository"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// The record query joins everything that is 1:1 with the key. Keyspace and API
// are inner joins so a missing or deleted one reads as "not found"; workspaces
// and identity are left joins so the caller can tell a missing workspace apart.
const recordQuery = `
SELECT
	k.id, k.hash, k.start, k.workspace_id, k.for_workspace_id, k.key_auth_id,
	k.name, k.owner_id, k.identity_id, k.meta, k.enabled, k.expires, k.remaining,
	a.id, a.workspace_id, a.name, a.ip_whitelist,
	ow.id, ow.name, ow.enabled,
	fw.id, fw.name, fw.enabled,
	i.id, i.external_id, i.workspace_id, i.meta
FROM keys k
JOIN key_auth ka ON ka.id = k.key_auth_id AND ka.deleted_at IS NULL
JOIN apis a ON a.id = ka.api_id AND a.deleted_at IS NULL
LEFT JOIN workspaces ow ON ow.id = k.workspace_id AND ow.deleted_at IS NULL
LEFT JOIN workspaces fw ON fw.id = k.for_workspace_id AND fw.deleted_at IS NULL
LEFT JOIN identities i ON i.id = k.identity_id AND i.deleted_at IS NULL
WHERE k.hash = ? AND k.deleted_at IS NULL
LIMIT 1`

const permissionQuery = `
SELECT p.slug FROM permissions p
JOIN keys_permissions kp ON kp.permission_id = p.id
WHERE kp.key_id = ?
UNION
SELECT p.slug FROM permissions p
JOIN roles_permissions rp ON rp.permission_id = p.id
JOIN keys_roles kr ON kr.role_id = rp.role_id
WHERE kr.key_id = ?`

const roleQuery = `
SELECT r.name FROM roles r
JOIN keys_roles kr ON kr.role_id = r.id
WHERE kr.key_id = ?
ORDER BY r.name`

// KeyRepository loads verification records with gorm.
type KeyRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
	logger       logger.Logger
}

var _ repository.KeyRepository = (*KeyRepository)(nil)

// NewKeyRepository creates a gorm-backed key repository. Each lookup is bounded by queryTimeout.
func NewKeyRepository(db *gorm.DB, queryTimeout time.Duration, log logger.Logger) *KeyRepository {
	return &KeyRepository{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       log.WithComponent("KeyRepository"),
	}
}

// FindVerificationRecord loads the aggregate for hash, or (nil, nil) when nothing live matches.
func (r *KeyRepository) FindVerificationRecord(ctx context.Context, hash string) (*models.VerificationRecord, error) {
	startTime := time.Now()
	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}

	record, err := r.findRecord(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("find key: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	var (
		permissions []string
		roles       []string
		ratelimits  []models.RateLimit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.db.WithContext(gctx).Raw(permissionQuery, record.Key.ID, record.Key.ID).Scan(&permissions).Error; err != nil {
			return fmt.Errorf("load permissions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.db.WithContext(gctx).Raw(roleQuery, record.Key.ID).Scan(&roles).Error; err != nil {
			return fmt.Errorf("load roles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		q := r.db.WithContext(gctx).Where("key_id = ?", record.Key.ID)
		if record.Identity != nil {
			q = q.Or("identity_id = ?", record.Identity.ID)
		}
		if err := q.Find(&ratelimits).Error; err != nil {
			return fmt.Errorf("load ratelimits: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	record.Permissions = dedupeSorted(permissions)
	record.Roles = roles
	record.Ratelimits = mergeRatelimits(ratelimits)

	r.logger.Debug(ctx, "Verification record loaded",
		logger.String("key_hash", hash),
		logger.String("key_id", record.Key.ID),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return record, nil
}

func (r *KeyRepository) findRecord(ctx context.Context, hash string) (*models.VerificationRecord, error) {
	var (
		k   models.Key
		a   models.Api
		ow  workspaceColumns
		fw  workspaceColumns
		id  identityColumns
		exp sql.NullTime
		rem sql.NullInt64
	)
	row := r.db.WithContext(ctx).Raw(recordQuery, hash).Row()
	err := row.Scan(
		&k.ID, &k.Hash, &k.Start, &k.WorkspaceID, &k.ForWorkspaceID, &k.KeyAuthID,
		&k.Name, &k.OwnerID, &k.IdentityID, &k.Meta, &k.Enabled, &exp, &rem,
		&a.ID, &a.WorkspaceID, &a.Name, &a.IPWhitelist,
		&ow.id, &ow.name, &ow.enabled,
		&fw.id, &fw.name, &fw.enabled,
		&id.id, &id.externalID, &id.workspaceID, &id.meta,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if exp.Valid {
		t := exp.Time.UTC()
		k.Expires = &t
	}
	if rem.Valid {
		v := rem.Int64
		k.Remaining = &v
	}

	return &models.VerificationRecord{
		Key:             k,
		Api:             a,
		OwningWorkspace: ow.toModel(),
		ForWorkspace:    fw.toModel(),
		Identity:        id.toModel(),
	}, nil
}

type workspaceColumns struct {
	id      sql.NullString
	name    sql.NullString
	enabled sql.NullBool
}

func (w workspaceColumns) toModel() *models.Workspace {
	if !w.id.Valid {
		return nil
	}
	return &models.Workspace{ID: w.id.String, Name: w.name.String, Enabled: w.enabled.Bool}
}

type identityColumns struct {
	id          sql.NullString
	externalID  sql.NullString
	workspaceID sql.NullString
	meta        sql.NullString
}

func (i identityColumns) toModel() *models.Identity {
	if !i.id.Valid {
		return nil
	}
	identity := &models.Identity{ID: i.id.String, ExternalID: i.externalID.String, WorkspaceID: i.workspaceID.String}
	if i.meta.Valid {
		meta := i.meta.String
		identity.Meta = &meta
	}
	return identity
}

// mergeRatelimits keys limits by name, identity rows first so key rows win.
func mergeRatelimits(rows []models.RateLimit) map[string]models.RateLimitConfig {
	merged := make(map[string]models.RateLimitConfig, len(rows))
	apply := func(keyLevel bool) {
		for _, rl := range rows {
			if (rl.KeyID != nil) != keyLevel {
				continue
			}
			merged[rl.Name] = models.RateLimitConfig{
				Name:      rl.Name,
				Limit:     rl.Limit,
				Duration:  rl.Duration,
				AutoApply: rl.AutoApply,
			}
		}
	}
	apply(false)
	apply(true)
	return merged
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
