package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/turtacn/apikeyd/internal/application/dto"
	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/errors"
)

// buildRatelimitRequests resolves the limits to check for one verification.
// Auto-applied limits come first in name order, then the request's overrides
// in the order given. An override replaces an earlier limit of the same name
// in place. An override with both limit and duration is ad-hoc; one carrying
// only a name binds to the configured limit of that name.
func buildRatelimitRequests(record *models.VerificationRecord, overrides []dto.RatelimitOverride) ([]models.RatelimitRequest, error) {
	identifier := record.RatelimitIdentifier()

	var requests []models.RatelimitRequest
	index := make(map[string]int)
	put := func(r models.RatelimitRequest) {
		if i, ok := index[r.Name]; ok {
			requests[i] = r
			return
		}
		index[r.Name] = len(requests)
		requests = append(requests, r)
	}

	names := make([]string, 0, len(record.Ratelimits))
	for name, rl := range record.Ratelimits {
		if rl.AutoApply {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		rl := record.Ratelimits[name]
		put(models.RatelimitRequest{
			Name:       rl.Name,
			Identifier: identifier,
			Cost:       constants.DefaultRatelimitCost,
			Limit:      rl.Limit,
			Duration:   rl.Window(),
		})
	}

	for _, o := range overrides {
		cost := constants.DefaultRatelimitCost
		if o.Cost != nil {
			cost = *o.Cost
		}

		if o.Limit != nil && o.Duration != nil {
			if *o.Duration < 1 || *o.Duration > models.MaxRatelimitDurationMs {
				return nil, errors.ErrInvalidRequest(fmt.Sprintf(
					"rate limit %q: duration must be between 1 and %d milliseconds", o.Name, models.MaxRatelimitDurationMs))
			}
			put(models.RatelimitRequest{
				Name:       o.Name,
				Identifier: identifier,
				Cost:       cost,
				Limit:      *o.Limit,
				Duration:   time.Duration(*o.Duration) * time.Millisecond,
			})
			continue
		}

		configured, ok := record.Ratelimits[o.Name]
		if !ok {
			return nil, errors.ErrMissingRatelimit(o.Name)
		}
		put(models.RatelimitRequest{
			Name:       configured.Name,
			Identifier: identifier,
			Cost:       cost,
			Limit:      configured.Limit,
			Duration:   configured.Window(),
		})
	}
	return requests, nil
}

// displayedLimit picks the status shown to the caller of a rejected verification.
func displayedLimit(res *models.MultiLimitResult) *models.RatelimitStatus {
	for i := range res.Limits {
		if res.Limits[i].Name == res.Triggered {
			return &res.Limits[i]
		}
	}
	if len(res.Limits) > 0 {
		return &res.Limits[0]
	}
	return nil
}
