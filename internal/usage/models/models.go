package models

import (
	"strings"
	"time"

	dErrors "transferai/pkg/domain-errors"
)

// Tier selects an account's daily request limit.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPremium
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "tier must be 'free' or 'premium'")
	}
	return t, nil
}

// Limits holds the daily request limit of each tier.
type Limits struct {
	Free    int
	Premium int
}

// DefaultLimits are applied when configuration leaves them unset.
var DefaultLimits = Limits{Free: 10, Premium: 100}

// For returns the limit of tier. Unknown tiers get the free limit.
func (l Limits) For(t Tier) int {
	if t == TierPremium {
		return l.Premium
	}
	return l.Free
}

// Record is one account's usage for the current period.
type Record struct {
	AccountID     string
	Email         string
	Name          string
	Tier          Tier
	RequestsUsed  int
	PeriodStart   time.Time
	LastRequestAt *time.Time
	CreatedAt     time.Time
}

// UsedAt returns the count that applies at now: zero once the period began
// on an earlier UTC day.
func (r *Record) UsedAt(now time.Time) int {
	if r.PeriodStart.Before(DayStart(now)) {
		return 0
	}
	return r.RequestsUsed
}

// Identity is the verified caller an account is created for.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Decision is the outcome of a metered request.
type Decision struct {
	Allowed   bool
	Tier      Tier
	Limit     int
	Used      int
	Remaining int
	ResetAt   time.Time
}

// Status is the read-only view of an account's usage.
type Status struct {
	Tier       Tier      `json:"tier"`
	UsageCount int       `json:"usageCount"`
	UsageLimit int       `json:"usageLimit"`
	ResetTime  time.Time `json:"resetTime"`
}

// DayStart returns UTC midnight of t's day. Periods roll over there.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextReset returns the next UTC midnight after t.
func NextReset(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1)
}
