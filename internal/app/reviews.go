package app

import (
	"fmt"
	"strings"
	"time"

	"openshare/pkg/domain"
)

// ReviewerIdentity names the reviewer recording a decision. There is no
// placeholder fallback: callers must identify the reviewer.
type ReviewerIdentity struct {
	Name        string
	Email       string
	Institution string
}

// ListInReview returns resources awaiting a review decision.
func (a *App) ListInReview() ([]domain.Resource, error) {
	return a.store.ListResourcesByStatus(domain.StatusInReview)
}

// GetReviewTarget returns a resource together with its review log, newest
// first.
func (a *App) GetReviewTarget(id uint) (domain.Resource, []domain.Review, error) {
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.Resource{}, nil, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.Resource{}, nil, ErrNotFound
	}
	reviews, err := a.store.ListReviews(id)
	if err != nil {
		return domain.Resource{}, nil, fmt.Errorf("list reviews: %w", err)
	}
	return res, reviews, nil
}

// RecordDecision appends a review and flips the resource status: approved
// becomes the terminal approved state, changes_requested sends the
// resource back to draft. Decisions are only accepted while the resource
// is in_review.
//
// Two concurrent decisions on the same resource race; the later commit
// wins. Acceptable at the low concurrency this service targets.
func (a *App) RecordDecision(id uint, decision domain.ReviewDecision, comments string, reviewer ReviewerIdentity) (domain.Review, error) {
	if decision != domain.DecisionApproved && decision != domain.DecisionChangesRequested {
		return domain.Review{}, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}
	reviewer.Name = strings.TrimSpace(reviewer.Name)
	reviewer.Email = normalizeEmail(reviewer.Email)
	if reviewer.Name == "" || reviewer.Email == "" {
		return domain.Review{}, fmt.Errorf("%w: reviewer name and email are required", ErrValidation)
	}

	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.Review{}, ErrNotFound
	}
	if res.Status != domain.StatusInReview {
		return domain.Review{}, fmt.Errorf("%w: resource is %s, not in_review", ErrInvalidState, res.Status)
	}

	user, err := a.store.UpsertUserByEmail(domain.User{
		Name:        reviewer.Name,
		Email:       reviewer.Email,
		Institution: strings.TrimSpace(reviewer.Institution),
		Role:        domain.RoleReviewer,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("upsert reviewer: %w", err)
	}
	// An existing author recording a decision is promoted to reviewer;
	// admins keep their role.
	if user.Role == domain.RoleAuthor {
		if err := a.store.SetUserRole(user.ID, domain.RoleReviewer); err != nil {
			return domain.Review{}, fmt.Errorf("promote reviewer: %w", err)
		}
		user.Role = domain.RoleReviewer
	}

	newStatus := domain.StatusDraft
	if decision == domain.DecisionApproved {
		newStatus = domain.StatusApproved
	}
	review, err := a.store.RecordReview(domain.Review{
		ResourceID: id,
		ReviewerID: user.ID,
		Decision:   decision,
		Comments:   strings.TrimSpace(comments),
		CreatedAt:  time.Now().UTC(),
	}, newStatus)
	if err != nil {
		return domain.Review{}, fmt.Errorf("record review: %w", err)
	}
	return review, nil
}
