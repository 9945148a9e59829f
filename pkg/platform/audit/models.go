package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events so sinks can route and retain them differently.
type EventCategory string

const (
	// CategoryBilling covers events that affect what an account is charged or allowed to do.
	CategoryBilling EventCategory = "billing"
	// CategorySecurity covers authentication failures and access violations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity useful for debugging. Can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Category  EventCategory     `json:"category"`
	Timestamp time.Time         `json:"timestamp"`
	AccountID string            `json:"account_id,omitempty"`
	Action    string            `json:"action"`
	Subject   string            `json:"subject,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

type AuditEvent string

const (
	EventQuotaExceeded    AuditEvent = "usage_quota_exceeded"
	EventTierUpdated      AuditEvent = "usage_tier_updated"
	EventAccountCreated   AuditEvent = "account_created"
	EventAuthFailed       AuditEvent = "auth_failed"
	EventAgreementFetched AuditEvent = "agreement_fetched"
	EventPagesGenerated   AuditEvent = "page_images_generated"
	EventCourseMapSaved   AuditEvent = "course_map_saved"
	EventCourseMapDeleted AuditEvent = "course_map_deleted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventQuotaExceeded:    CategoryBilling,
	EventTierUpdated:      CategoryBilling,
	EventAccountCreated:   CategoryBilling,
	EventAuthFailed:       CategorySecurity,
	EventAgreementFetched: CategoryOperations,
	EventPagesGenerated:   CategoryOperations,
	EventCourseMapSaved:   CategoryOperations,
	EventCourseMapDeleted: CategoryOperations,
}

// Category returns the category for this event. Unknown events are operations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Publisher emits audit events to a sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events for later review.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Event, error)
}
