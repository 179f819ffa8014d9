// Package plan maps subscription tiers to conversation quotas.
package plan

import (
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
)

// Plan is a subscription tier.
type Plan string

const (
	Free     Plan = "free"
	Pro      Plan = "pro"
	Business Plan = "business"
)

// Unlimited is the quota sentinel for plans without a conversation cap.
const Unlimited = -1

var limits = map[Plan]int{
	Free:     3,
	Pro:      30,
	Business: Unlimited,
}

// Parse returns the Plan named by s, or Free for anything unrecognized.
func Parse(s string) Plan {
	p := Plan(s)
	if _, ok := limits[p]; ok {
		return p
	}
	return Free
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := limits[p]
	return ok
}

// ConversationLimit returns the monthly conversation quota for p.
// Unknown plans get the free quota.
func ConversationLimit(p Plan) int {
	if n, ok := limits[p]; ok {
		return n
	}
	return limits[Free]
}

// CanSave reports whether a user on p who has saved used conversations
// this period may save another.
func CanSave(p Plan, used int) bool {
	limit := ConversationLimit(p)
	return limit == Unlimited || used < limit
}

// ForSubscription returns the plan a subscription currently grants.
// Missing or inactive subscriptions fall back to Free.
func ForSubscription(sub *conversation.Subscription) Plan {
	if !sub.Active() {
		return Free
	}
	return Parse(sub.Plan)
}

// PeriodStart returns the start of the calendar month (UTC) containing now.
// Usage is counted from this instant.
func PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Usage is a user's consumption against their plan for the current period.
type Usage struct {
	Plan  Plan `json:"plan"`
	Used  int  `json:"used"`
	Limit int  `json:"limit"`
}

// NewUsage builds Usage for p with used conversations.
func NewUsage(p Plan, used int) Usage {
	return Usage{Plan: p, Used: used, Limit: ConversationLimit(p)}
}

// Unlimited reports whether the plan has no cap.
func (u Usage) Unlimited() bool {
	return u.Limit == Unlimited
}

// Remaining returns how many more conversations may be saved, or Unlimited.
func (u Usage) Remaining() int {
	if u.Unlimited() {
		return Unlimited
	}
	return max(0, u.Limit-u.Used)
}

// Percent returns used/limit as a whole percentage capped at 100.
func (u Usage) Percent() int {
	if u.Unlimited() || u.Limit <= 0 {
		return 0
	}
	return min(100, u.Used*100/u.Limit)
}

// NearLimit reports usage at or above 80% of the quota.
func (u Usage) NearLimit() bool {
	return !u.Unlimited() && u.Percent() >= 80
}

// AtLimit reports whether no more conversations can be saved.
func (u Usage) AtLimit() bool {
	return !CanSave(u.Plan, u.Used)
}
