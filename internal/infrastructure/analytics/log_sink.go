package analytics

import (
	"context"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// LogSink writes verification events to the structured log.
type LogSink struct {
	logger logger.Logger
}

var _ service.AnalyticsSink = (*LogSink)(nil)

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithComponent("AnalyticsLogSink")}
}

func (s *LogSink) LogEvent(ctx context.Context, event *models.VerificationEvent) error {
	ensureEventID(event)
	s.logger.Info(ctx, "Key verification",
		logger.String("event_id", event.EventID),
		logger.String("workspace_id", event.WorkspaceID),
		logger.String("key_space_id", event.KeySpaceID),
		logger.String("key_id", event.KeyID),
		logger.String("identity_id", event.IdentityID),
		logger.String("outcome", event.Outcome),
		logger.String("region", event.Region),
	)
	return nil
}
