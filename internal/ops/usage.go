package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
)

// CurrentPlan returns the plan a user's mirrored subscription grants.
func CurrentPlan(ctx context.Context, database *sql.DB, userID string) (plan.Plan, error) {
	sub, err := db.GetSubscription(ctx, database, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return plan.Free, nil
		}
		return "", err
	}
	return plan.ForSubscription(sub), nil
}

// GetUsage reports how many conversations userID has saved this month
// against their plan's quota.
func GetUsage(ctx context.Context, database *sql.DB, userID string, now time.Time) (plan.Usage, error) {
	p, err := CurrentPlan(ctx, database, userID)
	if err != nil {
		return plan.Usage{}, err
	}
	used, err := db.CountConversationsSince(ctx, database, userID, plan.PeriodStart(now).Unix())
	if err != nil {
		return plan.Usage{}, err
	}
	return plan.NewUsage(p, used), nil
}
