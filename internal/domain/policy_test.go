package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matdesk/requisition-service/pkg/identity"
)

func cancellableRequisition(completed time.Time) *Requisition {
	return &Requisition{
		ApplicantID:     "u-100",
		Status:          RequisitionStatusCompleted,
		CompletedTime:   completed,
		CanCancelBefore: completed.Add(CancelWindow),
	}
}

func TestCancelPolicyChecksRunInOrder(t *testing.T) {
	completed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	policy := NewCancelPolicy(FixedClock{Instant: completed.Add(10 * time.Minute)})

	// Past the window AND already cancelled AND wrong actor: the
	// authorization failure must win
	r := cancellableRequisition(completed)
	r.Status = RequisitionStatusCancelled
	err := policy.Authorize(r, &identity.Actor{ID: "u-999", Role: identity.RoleApplicant})
	assert.ErrorIs(t, err, ErrForbidden)

	// Right actor, already cancelled, past the window: status beats window
	r = cancellableRequisition(completed)
	r.Status = RequisitionStatusCancelled
	err = policy.Authorize(r, &identity.Actor{ID: "u-100", Role: identity.RoleApplicant})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Right actor, completed, past the window
	r = cancellableRequisition(completed)
	err = policy.Authorize(r, &identity.Actor{ID: "u-100", Role: identity.RoleApplicant})
	assert.ErrorIs(t, err, ErrWindowExpired)
}

func TestCancelPolicyAllowsApplicantInWindow(t *testing.T) {
	completed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	policy := NewCancelPolicy(FixedClock{Instant: completed.Add(4 * time.Minute)})

	err := policy.Authorize(cancellableRequisition(completed), &identity.Actor{ID: "u-100", Role: identity.RoleApplicant})
	assert.NoError(t, err)
}

func TestCancelPolicyAllowsElevatedRoles(t *testing.T) {
	completed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	policy := NewCancelPolicy(FixedClock{Instant: completed.Add(1 * time.Minute)})

	for _, role := range []string{identity.RoleManager, identity.RoleAdmin} {
		err := policy.Authorize(cancellableRequisition(completed), &identity.Actor{ID: "u-999", Role: role})
		assert.NoError(t, err, "role %s", role)
	}
}

func TestCancelPolicyDeadlineIsInclusive(t *testing.T) {
	completed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// Exactly at the deadline is still allowed; one nanosecond later is not
	atDeadline := NewCancelPolicy(FixedClock{Instant: completed.Add(CancelWindow)})
	assert.NoError(t, atDeadline.Authorize(cancellableRequisition(completed), &identity.Actor{ID: "u-100"}))

	pastDeadline := NewCancelPolicy(FixedClock{Instant: completed.Add(CancelWindow + time.Nanosecond)})
	err := pastDeadline.Authorize(cancellableRequisition(completed), &identity.Actor{ID: "u-100"})
	assert.ErrorIs(t, err, ErrWindowExpired)
}

func TestCancelPolicyLegacyWindow(t *testing.T) {
	completed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	legacy := &Requisition{
		ApplicantID:   "u-100",
		Status:        RequisitionStatusCompleted,
		CompletedTime: completed,
	}

	within := NewCancelPolicy(FixedClock{Instant: completed.Add(23 * time.Hour)})
	assert.NoError(t, within.Authorize(legacy, &identity.Actor{ID: "u-100"}))

	past := NewCancelPolicy(FixedClock{Instant: completed.Add(25 * time.Hour)})
	err := past.Authorize(legacy, &identity.Actor{ID: "u-100"})
	assert.ErrorIs(t, err, ErrWindowExpired)
}

func TestCancelPolicyNilRequisition(t *testing.T) {
	policy := NewCancelPolicy(SystemClock{})
	err := policy.Authorize(nil, &identity.Actor{ID: "u-100"})
	assert.ErrorIs(t, err, ErrRequisitionNotFound)
}
