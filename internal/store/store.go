package store

import "openshare/pkg/domain"

// Store defines persistence operations for users, resources, versions,
// invites, reviews, and launch links.
type Store interface {
	// users
	UpsertUserByEmail(u domain.User) (domain.User, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id uint) (domain.User, bool, error)
	SetUserRole(id uint, role domain.UserRole) error

	// resources
	// CreateResource writes the resource, its first version, and the
	// optional invite in a single transaction.
	CreateResource(res domain.Resource, version domain.ResourceVersion, invite *domain.CollaborationInvite) (domain.Resource, error)
	GetResource(id uint) (domain.Resource, bool, error)
	ListResources() ([]domain.Resource, error)
	ListResourcesByStatus(status domain.ResourceStatus) ([]domain.Resource, error)
	SetResourceStatus(id uint, status domain.ResourceStatus) error
	DeleteResource(id uint) error

	// versions
	// AppendVersion assigns version_number = max+1 for the resource and
	// inserts in one transaction.
	AppendVersion(v domain.ResourceVersion) (domain.ResourceVersion, error)
	LatestVersion(resourceID uint) (domain.ResourceVersion, bool, error)
	ListVersions(resourceID uint) ([]domain.ResourceVersion, error)

	// invites
	AddInvite(inv domain.CollaborationInvite) (domain.CollaborationInvite, error)
	// ListInvites returns invites newest-first.
	ListInvites(resourceID uint) ([]domain.CollaborationInvite, error)

	// reviews
	// RecordReview appends the review row and updates the resource status
	// in one transaction.
	RecordReview(rev domain.Review, newStatus domain.ResourceStatus) (domain.Review, error)
	ListReviews(resourceID uint) ([]domain.Review, error)

	// launch links
	// EnsureLink returns the existing link for the resource or creates one.
	EnsureLink(resourceID uint, url string) (domain.LtiLink, error)
	GetLink(resourceID uint) (domain.LtiLink, bool, error)
}
