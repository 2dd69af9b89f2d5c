package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tier is one rung of the promotion ladder. HierarchyLevel is the stable
// comparison key everywhere — display names are never compared.
type Tier struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name            string             `bson:"name" json:"name"`
	HierarchyLevel  int                `bson:"hierarchyLevel" json:"hierarchyLevel"`
	PointsThreshold int64              `bson:"pointsThreshold" json:"pointsThreshold"`

	// Downgrade rule, evaluated monthly. A tier participates in downgrade
	// evaluation only when DowngradeGraceMonths > 0.
	MinimumPoints          int64 `bson:"minimumPoints,omitempty" json:"minimumPoints,omitempty"`
	RequiredMonthlyAverage int64 `bson:"requiredMonthlyAverage,omitempty" json:"requiredMonthlyAverage,omitempty"`
	DowngradeGraceMonths   int   `bson:"downgradeGraceMonths,omitempty" json:"downgradeGraceMonths,omitempty"`

	IsActive  bool      `bson:"isActive" json:"isActive"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// TierEligibilityCriteria configures upgrade evaluation for one target tier,
// optionally scoped to an app. At most one general (AppID empty) and one
// app-scoped record may exist per tier; the unique index enforces it.
type TierEligibilityCriteria struct {
	ID                         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	TierID                     primitive.ObjectID `bson:"tierId" json:"tierId"`
	AppID                      string             `bson:"appId,omitempty" json:"appId,omitempty"`
	NetEarningRequired         int64              `bson:"netEarningRequired" json:"netEarningRequired"`
	EvaluationPeriodDays       int                `bson:"evaluationPeriodDays" json:"evaluationPeriodDays"`
	ConsecutivePeriodsRequired int                `bson:"consecutivePeriodsRequired" json:"consecutivePeriodsRequired"`
	RequireConsecutive         bool               `bson:"requireConsecutive" json:"requireConsecutive"`
	UseCalendarMonths          bool               `bson:"useCalendarMonths" json:"useCalendarMonths"`
	IsActive                   bool               `bson:"isActive" json:"isActive"`
	CreatedAt                  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt                  time.Time          `bson:"updatedAt" json:"updatedAt"`
}
