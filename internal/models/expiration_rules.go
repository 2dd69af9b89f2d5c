package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TierLifetimeExtension grants extra lot lifetime to customers of a tier,
// keyed by hierarchy level rather than tier name or id so the rule survives
// tier renames.
type TierLifetimeExtension struct {
	HierarchyLevel int `bson:"hierarchyLevel" json:"hierarchyLevel"`
	ExtensionDays  int `bson:"extensionDays" json:"extensionDays"`
}

// PointsExpirationRules is the active expiry configuration. Exactly one
// record is active at a time; creating a new one supersedes the previous.
type PointsExpirationRules struct {
	ID                   primitive.ObjectID      `bson:"_id,omitempty" json:"id,omitempty"`
	DefaultLifetimeDays  int                     `bson:"defaultLifetimeDays" json:"defaultLifetimeDays"`
	TierExtensions       []TierLifetimeExtension `bson:"tierExtensions,omitempty" json:"tierExtensions,omitempty"`
	NotificationLeadDays []int                   `bson:"notificationLeadDays,omitempty" json:"notificationLeadDays,omitempty"`
	GracePeriodDays      int                     `bson:"gracePeriodDays" json:"gracePeriodDays"`
	IsActive             bool                    `bson:"isActive" json:"isActive"`
	CreatedAt            time.Time               `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time               `bson:"updatedAt" json:"updatedAt"`
}

// ExtensionForLevel returns the lifetime extension configured for a tier
// hierarchy level, or zero when none is configured.
func (r *PointsExpirationRules) ExtensionForLevel(level int) int {
	for _, ext := range r.TierExtensions {
		if ext.HierarchyLevel == level {
			return ext.ExtensionDays
		}
	}
	return 0
}
