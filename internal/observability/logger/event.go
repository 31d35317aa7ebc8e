package logger

import (
	"context"

	"go.uber.org/zap"
)

// Domain classifies which subsystem an event originates from.
type Domain string

const (
	DomainAuth      Domain = "auth"
	DomainHTTP      Domain = "http"
	DomainDB        Domain = "db"
	DomainBusiness  Domain = "business"
	DomainSystem    Domain = "system"
	DomainSecurity  Domain = "security"
	DomainAI        Domain = "ai"
	DomainRealtime  Domain = "realtime"
)

// Category routes an event to one of the logical access/change/error/
// availability streams.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryChange         Category = "change"
	CategoryError          Category = "error"
	CategoryAvailability   Category = "availability"
	CategorySecurity       Category = "security_incident"
	CategoryPerformance    Category = "performance"
)

// Event is a single structured observability record. Route and Method are
// only populated for HTTP-domain events.
type Event struct {
	Domain   Domain
	Category Category
	Name     string
	UserID   string
	Role     string
	IP       string
	Method   string
	Route    string
	Metadata map[string]any
}

// Emit writes a structured Event through the given logger at a level
// derived from its Category. Best-effort: it never returns an error, since
// the observability pipeline must not cause business-path failures.
func Emit(ctx context.Context, log *zap.Logger, evt Event) {
	if log == nil {
		return
	}
	log = WithContext(ctx, log).Named(string(evt.Domain))

	fields := []zap.Field{
		zap.String("event_category", string(evt.Category)),
		zap.String("event_name", evt.Name),
	}
	if evt.UserID != "" {
		fields = append(fields, zap.String("user_id", evt.UserID))
	}
	if evt.Role != "" {
		fields = append(fields, zap.String("role", evt.Role))
	}
	if evt.IP != "" {
		fields = append(fields, zap.String("ip", evt.IP))
	}
	if evt.Method != "" {
		fields = append(fields, zap.String("method", evt.Method))
	}
	if evt.Route != "" {
		fields = append(fields, zap.String("route", evt.Route))
	}
	for k, v := range evt.Metadata {
		fields = append(fields, zap.Any(k, v))
	}

	switch evt.Category {
	case CategoryError, CategorySecurity:
		log.Warn(evt.Name, fields...)
	default:
		log.Info(evt.Name, fields...)
	}
}
