package domain

import (
	"fmt"

	"github.com/matdesk/requisition-service/pkg/identity"
)

// CancelPolicy guards the completed → cancelled transition. It is
// evaluated in full before any stock read or mutation happens.
type CancelPolicy struct {
	clock Clock
}

// NewCancelPolicy creates a policy guard bound to a clock
func NewCancelPolicy(clock Clock) *CancelPolicy {
	return &CancelPolicy{clock: clock}
}

// Authorize decides whether the actor may cancel the requisition.
// Checks run in a fixed order: actor authorization, status, time window.
func (p *CancelPolicy) Authorize(requisition *Requisition, actor *identity.Actor) error {
	if requisition == nil {
		return ErrRequisitionNotFound
	}

	if !actor.CanActOn(requisition.ApplicantID) {
		return fmt.Errorf("%w: actor %s is neither the applicant nor elevated", ErrForbidden, actor.ID)
	}

	if requisition.Status != RequisitionStatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrInvalidState, requisition.Status)
	}

	deadline := requisition.CancelDeadline()
	if p.clock.Now().After(deadline) {
		return fmt.Errorf("%w: deadline was %s", ErrWindowExpired, deadline.Format("2006-01-02T15:04:05Z07:00"))
	}

	return nil
}
