package domain

import "time"

type ResourceStatus string

const (
	StatusDraft    ResourceStatus = "draft"
	StatusInReview ResourceStatus = "in_review"
	StatusApproved ResourceStatus = "approved"
)

type UserRole string

const (
	RoleAuthor   UserRole = "author"
	RoleReviewer UserRole = "reviewer"
	RoleAdmin    UserRole = "admin"
)

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
)

type ReviewDecision string

const (
	DecisionApproved         ReviewDecision = "approved"
	DecisionChangesRequested ReviewDecision = "changes_requested"
)

type User struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Institution string    `json:"institution"`
	Role        UserRole  `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Resource struct {
	ID          uint           `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      ResourceStatus `json:"status"`
	License     string         `json:"license"`
	CreatedBy   uint           `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ResourceVersion is an immutable content snapshot. Edits append a new
// version; existing versions are never rewritten.
type ResourceVersion struct {
	ID            uint              `json:"id"`
	ResourceID    uint              `json:"resourceId"`
	VersionNumber int               `json:"versionNumber"`
	Content       string            `json:"content"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedBy     uint              `json:"createdBy"`
	CreatedAt     time.Time         `json:"createdAt"`
}

type CollaborationInvite struct {
	ID                uint         `json:"id"`
	ResourceID        uint         `json:"resourceId"`
	CollaboratorEmail string       `json:"collaboratorEmail"`
	Message           string       `json:"message,omitempty"`
	Status            InviteStatus `json:"status"`
	CreatedAt         time.Time    `json:"createdAt"`
}

type Review struct {
	ID         uint           `json:"id"`
	ResourceID uint           `json:"resourceId"`
	ReviewerID uint           `json:"reviewerId"`
	Decision   ReviewDecision `json:"decision"`
	Comments   string         `json:"comments,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// LtiLink is the stable launch reference handed to an LMS. At most one
// exists per resource.
type LtiLink struct {
	ID         uint   `json:"id"`
	ResourceID uint   `json:"resourceId"`
	URL        string `json:"url"`
}

// LaunchSnapshot pairs an approved resource with its latest version for
// LMS launches.
type LaunchSnapshot struct {
	Resource Resource        `json:"resource"`
	Version  ResourceVersion `json:"version"`
}
