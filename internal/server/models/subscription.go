package models

import "time"

type PlanType string

const (
	PlanBasic      PlanType = "BASIC"
	PlanPro        PlanType = "PRO"
	PlanEnterprise PlanType = "ENTERPRISE"
)

type Plan struct {
	ID       string
	Name     string
	Type     PlanType
	MaxCards *int
}

type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

type Subscription struct {
	ID          string
	UserID      string
	PlanID      string
	Status      SubscriptionStatus
	TrialEndsAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time

	// Plan is populated by lookups that join plans.
	Plan *Plan
}
