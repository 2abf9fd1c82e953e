// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/apikeyd/internal/application/dto"
	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/rbac"
	"github.com/turtacn/apikeyd/internal/domain/repository"
	domainService "github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/errors"
	"github.com/turtacn/apikeyd/pkg/logger"
	"github.com/turtacn/apikeyd/pkg/utils"
)

// KeyAppService defines the interface for the key verification application service
type KeyAppService interface {
	// VerifyKey resolves a secret and runs every check against it. Business
	// rejections are returned as results; only infrastructure and request
	// failures are returned as errors.
	VerifyKey(ctx context.Context, req *dto.VerifyKeyRequest) (models.VerifyKeyResult, error)

	// Drain waits for in-flight analytics emissions or for ctx to end.
	Drain(ctx context.Context) error
}

// Tracer starts spans; *monitoring.TracingManager satisfies it.
type Tracer interface {
	StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// KeyAppServiceDeps are the collaborators of the key verification service.
type KeyAppServiceDeps struct {
	Hasher       domainService.Hasher
	Cache        domainService.RecordCache
	Keys         repository.KeyRepository
	Workspaces   repository.WorkspaceRepository
	RateLimiter  domainService.RateLimitService
	UsageLimiter domainService.UsageLimiter
	Analytics    domainService.AnalyticsSink
	Metrics      domainService.Metrics
	// Tracer is optional.
	Tracer Tracer
	Logger logger.Logger
}

// KeyAppServiceConfig tunes the key verification service.
type KeyAppServiceConfig struct {
	// FetchAttempts bounds direct store reads after a failed cached lookup.
	FetchAttempts int
	// AnalyticsTimeout bounds one analytics emission.
	AnalyticsTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// keyAppServiceImpl is the concrete implementation of KeyAppService
type keyAppServiceImpl struct {
	hasher       domainService.Hasher
	cache        domainService.RecordCache
	fallback     *FallbackPolicy
	workspaces   repository.WorkspaceRepository
	rateLimiter  domainService.RateLimitService
	usageLimiter domainService.UsageLimiter
	analytics    domainService.AnalyticsSink
	metrics      domainService.Metrics
	tracer       Tracer
	logger       logger.Logger

	analyticsTimeout time.Duration
	clock            func() time.Time
	inflight         sync.WaitGroup
}

// NewKeyAppService creates a new instance of KeyAppService
func NewKeyAppService(deps KeyAppServiceDeps, cfg KeyAppServiceConfig) KeyAppService {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.AnalyticsTimeout <= 0 {
		cfg.AnalyticsTimeout = constants.DefaultAnalyticsTimeout
	}
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = constants.DefaultFetchAttempts
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noopTracer{noop.NewTracerProvider().Tracer("noop")}
	}
	log := deps.Logger.WithComponent("KeyAppService")

	return &keyAppServiceImpl{
		hasher:           deps.Hasher,
		cache:            deps.Cache,
		fallback:         NewFallbackPolicy(deps.Cache, deps.Keys, cfg.FetchAttempts, deps.Logger),
		workspaces:       deps.Workspaces,
		rateLimiter:      deps.RateLimiter,
		usageLimiter:     deps.UsageLimiter,
		analytics:        deps.Analytics,
		metrics:          deps.Metrics,
		tracer:           tracer,
		logger:           log,
		analyticsTimeout: cfg.AnalyticsTimeout,
		clock:            cfg.Clock,
	}
}

type noopTracer struct{ trace.Tracer }

func (t noopTracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.Start(ctx, spanName, opts...)
}

// VerifyKey implements the verification flow. Checks run in a fixed order and
// the first failing check decides the outcome.
func (s *keyAppServiceImpl) VerifyKey(ctx context.Context, req *dto.VerifyKeyRequest) (models.VerifyKeyResult, error) {
	start := s.clock()
	ctx, span := s.tracer.StartSpan(ctx, "KeyAppService.VerifyKey")
	defer span.End()

	if apiErr := utils.ValidateStruct(req); apiErr != nil {
		s.finish(span, "", apiErr, start)
		return nil, apiErr
	}

	hash := s.hasher.Hash(req.Key)
	result, record, err := s.verify(ctx, req, hash)
	if err != nil {
		s.logger.Error(ctx, "Key verification failed", err, logger.String("key_hash", hash))
		s.finish(span, "", err, start)
		return nil, err
	}

	if record != nil {
		span.SetAttributes(attribute.String("key_id", record.Key.ID))
		s.emit(ctx, req, record, result.Code())
	}
	s.finish(span, result.Code(), nil, start)
	return result, nil
}

func (s *keyAppServiceImpl) verify(ctx context.Context, req *dto.VerifyKeyRequest, hash string) (models.VerifyKeyResult, *models.VerificationRecord, error) {
	// 1. Load the record
	record, err := s.fallback.Fetch(ctx, hash)
	if err != nil {
		return nil, nil, err
	}

	// 2. Unknown secret
	if record == nil {
		return models.NotFoundResult{}, nil, nil
	}

	// 3. Repair a record whose owning workspace did not resolve
	if record.OwningWorkspace == nil {
		record, err = s.repairWorkspace(ctx, hash, record)
		if err != nil {
			return nil, nil, err
		}
	}

	// 4. Workspaces must be enabled
	if record.Key.ForWorkspaceID != nil && (record.ForWorkspace == nil || !record.ForWorkspace.Enabled) {
		return nil, nil, errors.ErrDisabledWorkspace(*record.Key.ForWorkspaceID)
	}
	if !record.OwningWorkspace.Enabled {
		return nil, nil, errors.ErrDisabledWorkspace(record.OwningWorkspace.ID)
	}

	// 5. Key switched off
	if !record.Key.Enabled {
		return s.invalid(record, constants.CodeDisabled, "the key is disabled"), record, nil
	}

	// 6. Pinned to another API
	if req.APIID != nil && *req.APIID != record.Api.ID {
		return s.invalid(record, constants.CodeForbidden, "the key does not belong to this api"), record, nil
	}

	// 7. Expired
	if record.Key.Expires != nil && record.Key.Expires.UnixMilli() < s.clock().UnixMilli() {
		return s.invalid(record, constants.CodeExpired, "the key has expired"), record, nil
	}

	// 8. IP allowlist
	if hasAllowlist(record.Api.IPWhitelist) {
		if req.ClientIP == "" || !ipAllowed(*record.Api.IPWhitelist, req.ClientIP) {
			return s.invalid(record, constants.CodeForbidden, "the client ip is not allowed"), record, nil
		}
	}

	// 9. Permissions
	if req.Permissions != nil {
		if err := rbac.Validate(*req.Permissions); err != nil {
			return nil, nil, errors.ErrInvalidPermissionQuery(err)
		}
		decision := rbac.Evaluate(*req.Permissions, rbac.NewPermissionSet(record.Permissions...))
		if !decision.Valid {
			return s.invalid(record, constants.CodeInsufficientPermissions, decision.Message), record, nil
		}
	}

	// 10. Rate limits
	ratelimits, rejected, err := s.checkRatelimits(ctx, req, record)
	if err != nil {
		return nil, nil, err
	}
	if rejected != nil {
		res := s.invalid(record, constants.CodeRateLimited, "rate limit exceeded")
		res.Ratelimit = rejected
		return res, record, nil
	}

	// 11. Usage
	remaining, exceeded, err := s.deductUsage(ctx, req, record)
	if err != nil {
		return nil, nil, err
	}
	if exceeded {
		zero := int64(0)
		res := s.invalid(record, constants.CodeUsageExceeded, "the key has no remaining uses")
		res.Remaining = &zero
		if len(ratelimits) > 0 {
			res.Ratelimit = &ratelimits[0]
		}
		return res, record, nil
	}

	// 12. Valid
	key := record.Key
	return &models.ValidResult{
		Key:                   &key,
		Api:                   &record.Api,
		Identity:              record.Identity,
		Permissions:           record.Permissions,
		Roles:                 record.Roles,
		Ratelimits:            ratelimits,
		Remaining:             remaining,
		AuthorizedWorkspaceID: record.Key.AuthorizedWorkspaceID(),
		IsRootKey:             record.Key.IsRootKey(),
	}, record, nil
}

// repairWorkspace reloads the owning workspace of a record and replaces the
// cache entry with a patched copy. The shared record is never modified.
func (s *keyAppServiceImpl) repairWorkspace(ctx context.Context, hash string, record *models.VerificationRecord) (*models.VerificationRecord, error) {
	workspaceID := record.Key.WorkspaceID
	s.logger.Warn(ctx, "Record has no owning workspace, reloading it",
		logger.String("key_hash", hash),
		logger.String("workspace_id", workspaceID),
	)
	s.cache.Remove(hash)

	ws, err := s.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		return nil, errors.ErrFetchFailed(err)
	}
	if ws == nil {
		return nil, errors.ErrDisabledWorkspace(workspaceID)
	}

	patched := record.WithOwningWorkspace(ws)
	s.cache.Set(hash, patched)
	return patched, nil
}

// checkRatelimits returns the evaluated limits, or the limit to display when
// the call was rejected. Limiter outages let the call through; requests the
// limiter refuses as malformed are errors.
func (s *keyAppServiceImpl) checkRatelimits(ctx context.Context, req *dto.VerifyKeyRequest, record *models.VerificationRecord) ([]models.RatelimitStatus, *models.RatelimitStatus, error) {
	requests, err := buildRatelimitRequests(record, req.Ratelimits)
	if err != nil {
		return nil, nil, err
	}
	if len(requests) == 0 {
		return nil, nil, nil
	}

	res, err := s.rateLimiter.MultiLimit(ctx, requests)
	if stderrors.Is(err, domainService.ErrInvalidRatelimitRequest) {
		return nil, nil, errors.ErrInvalidRequest("rate limit request is not valid").WithCause(err)
	}
	if err != nil {
		s.logger.Warn(ctx, "Rate limiter unavailable, letting the request through",
			logger.String("key_id", record.Key.ID),
			logger.Error(err),
		)
		s.metrics.RecordRateLimitFailOpen()
		return nil, nil, nil
	}
	if !res.Passed {
		s.metrics.RecordRateLimitRejected(res.Triggered)
		return res.Limits, displayedLimit(res), nil
	}
	return res.Limits, nil, nil
}

// deductUsage returns the new balance, nil for unlimited keys, and whether
// the deduction was rejected.
func (s *keyAppServiceImpl) deductUsage(ctx context.Context, req *dto.VerifyKeyRequest, record *models.VerificationRecord) (*int64, bool, error) {
	if record.Key.Remaining == nil {
		return nil, false, nil
	}
	cost := constants.DefaultRemainingCost
	if req.RemainingCost != nil {
		cost = *req.RemainingCost
	}

	res, err := s.usageLimiter.Deduct(ctx, record.Key.ID, cost)
	if err != nil {
		s.metrics.RecordUsageDeduction("error")
		return nil, false, errors.ErrUsageLimiter(err)
	}
	if !res.Valid {
		s.metrics.RecordUsageDeduction("rejected")
		return nil, true, nil
	}
	s.metrics.RecordUsageDeduction("accepted")
	remaining := res.Remaining
	return &remaining, false, nil
}

func (s *keyAppServiceImpl) invalid(record *models.VerificationRecord, code constants.VerifyCode, message string) *models.InvalidResult {
	key := record.Key
	return &models.InvalidResult{
		Status:      code,
		Message:     message,
		Key:         &key,
		Api:         &record.Api,
		Identity:    record.Identity,
		Remaining:   key.Remaining,
		Permissions: record.Permissions,
		Roles:       record.Roles,
	}
}

// emit sends the verification event without holding up the caller.
func (s *keyAppServiceImpl) emit(ctx context.Context, req *dto.VerifyKeyRequest, record *models.VerificationRecord, code constants.VerifyCode) {
	event := &models.VerificationEvent{
		RequestID:   req.RequestID,
		Time:        s.clock().UnixMilli(),
		WorkspaceID: record.Key.WorkspaceID,
		KeySpaceID:  record.Key.KeyAuthID,
		KeyID:       record.Key.ID,
		Outcome:     string(code),
		Region:      req.Region,
	}
	if record.Identity != nil {
		event.IdentityID = record.Identity.ID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.analyticsTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.analytics.LogEvent(ctx, event); err != nil {
			s.logger.Debug(ctx, "Analytics event not delivered",
				logger.String("key_id", event.KeyID),
				logger.Error(err),
			)
		}
	}()
}

func (s *keyAppServiceImpl) finish(span trace.Span, code constants.VerifyCode, err error, start time.Time) {
	label := string(code)
	if err != nil {
		label = "ERROR"
		if apiErr, ok := errors.AsAPIError(err); ok {
			label = string(apiErr.Code())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, label)
	} else {
		span.SetAttributes(attribute.String("code", label))
	}
	s.metrics.RecordVerification(label, s.clock().Sub(start))
}

// Drain waits for in-flight analytics emissions or for ctx to end.
func (s *keyAppServiceImpl) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
