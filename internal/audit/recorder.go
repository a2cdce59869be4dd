// Package audit records committed lifecycle transitions.
package audit

import (
	"context"

	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/ports"
)

const ActorSystem = "system"

// Recorder forwards transitions to the Auditor after the unit of work has
// committed. Audit failures are logged, never returned.
type Recorder struct {
	auditor ports.Auditor
	logger  observability.Logger
}

func NewRecorder(auditor ports.Auditor, logger observability.Logger) *Recorder {
	return &Recorder{auditor: auditor, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, actor string, entries ...domain.AuditEntry) {
	for _, e := range entries {
		if e.Entity == "" {
			continue
		}
		e.Actor = actor
		observability.StatusTransitions.WithLabelValues(e.Entity, e.From, e.To).Inc()
		if r.auditor == nil {
			continue
		}
		if err := r.auditor.LogTransition(ctx, e); err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"entity":    e.Entity,
				"entity_id": e.EntityID.String(),
				"to":        e.To,
			}).Warn("audit write failed")
		}
	}
}
