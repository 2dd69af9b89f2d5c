package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Balance is the customer's balance view: the denormalized total plus the
// portion of it held in lots expiring within the requested window.
type Balance struct {
	CustomerID    primitive.ObjectID `json:"customerId"`
	Total         int64              `json:"total"`
	ExpiringSoon  int64              `json:"expiringSoon"`
	WindowDays    int                `json:"windowDays"`
	NextExpiry    *time.Time         `json:"nextExpiry,omitempty"`
	CurrentTierID primitive.ObjectID `json:"currentTierId,omitempty"`
}

// PeriodResult is one evaluation period's outcome inside an eligibility
// report, ordered oldest first.
type PeriodResult struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	NetEarned int64     `json:"netEarned"`
	Qualified bool      `json:"qualified"`
}

// EligibilityReport is the result of an upgrade evaluation.
type EligibilityReport struct {
	CustomerID       primitive.ObjectID `json:"customerId"`
	Eligible         bool               `json:"eligible"`
	Applied          bool               `json:"applied"`
	CurrentTierLevel int                `json:"currentTierLevel"`
	TargetTierID     primitive.ObjectID `json:"targetTierId,omitempty"`
	TargetTierLevel  int                `json:"targetTierLevel,omitempty"`
	Reason           string             `json:"reason,omitempty"`
	Periods          []PeriodResult     `json:"periods,omitempty"`
	EvaluatedAt      time.Time          `json:"evaluatedAt"`
}

// SweepReport summarizes one expiry sweep run.
type SweepReport struct {
	Scanned       int       `json:"scanned"`
	Expired       int       `json:"expired"`
	Failed        int       `json:"failed"`
	PointsExpired int64     `json:"pointsExpired"`
	StartedAt     time.Time `json:"startedAt"`
	Duration      string    `json:"duration"`
}

// DowngradeReport summarizes one downgrade evaluation run.
type DowngradeReport struct {
	Evaluated  int       `json:"evaluated"`
	Downgraded int       `json:"downgraded"`
	Retained   int       `json:"retained"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	Duration   string    `json:"duration"`
}
