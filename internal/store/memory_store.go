package store

import (
	"sort"
	"sync"

	"openshare/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and mirrors the
// ordering and idempotency guarantees of GormStore.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[uint]domain.User
	emails    map[string]uint // email -> user ID
	resources map[uint]domain.Resource
	resOrder  []uint
	versions  map[uint][]domain.ResourceVersion // resource ID -> versions (ascending)
	invites   map[uint][]domain.CollaborationInvite
	reviews   map[uint][]domain.Review
	links     map[uint]domain.LtiLink // resource ID -> link

	nextUser     uint
	nextResource uint
	nextVersion  uint
	nextInvite   uint
	nextReview   uint
	nextLink     uint
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uint]domain.User),
		emails:    make(map[string]uint),
		resources: make(map[uint]domain.Resource),
		versions:  make(map[uint][]domain.ResourceVersion),
		invites:   make(map[uint][]domain.CollaborationInvite),
		reviews:   make(map[uint][]domain.Review),
		links:     make(map[uint]domain.LtiLink),
	}
}

// UpsertUserByEmail finds a user by email or creates one.
func (m *MemoryStore) UpsertUserByEmail(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.emails[u.Email]; ok {
		return m.users[id], nil
	}
	m.nextUser++
	u.ID = m.nextUser
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return u, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.emails[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// SetUserRole updates an existing user's role.
func (m *MemoryStore) SetUserRole(id uint, role domain.UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.Role = role
	m.users[id] = u
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id uint) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateResource stores the resource, version 1, and the optional invite.
func (m *MemoryStore) CreateResource(res domain.Resource, version domain.ResourceVersion, invite *domain.CollaborationInvite) (domain.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextResource++
	res.ID = m.nextResource
	m.resources[res.ID] = res
	m.resOrder = append(m.resOrder, res.ID)

	m.nextVersion++
	version.ID = m.nextVersion
	version.ResourceID = res.ID
	m.versions[res.ID] = append(m.versions[res.ID], version)

	if invite != nil {
		inv := *invite
		m.nextInvite++
		inv.ID = m.nextInvite
		inv.ResourceID = res.ID
		m.invites[res.ID] = append(m.invites[res.ID], inv)
	}
	return res, nil
}

// GetResource retrieves a resource by ID.
func (m *MemoryStore) GetResource(id uint) (domain.Resource, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.resources[id]
	return res, ok, nil
}

// ListResources returns resources in insertion order.
func (m *MemoryStore) ListResources() ([]domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Resource, 0, len(m.resOrder))
	for _, id := range m.resOrder {
		if r, ok := m.resources[id]; ok {
			res = append(res, r)
		}
	}
	return res, nil
}

// ListResourcesByStatus filters resources by status, insertion order.
func (m *MemoryStore) ListResourcesByStatus(status domain.ResourceStatus) ([]domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Resource, 0, len(m.resOrder))
	for _, id := range m.resOrder {
		if r, ok := m.resources[id]; ok && r.Status == status {
			res = append(res, r)
		}
	}
	return res, nil
}

// SetResourceStatus updates the lifecycle status.
func (m *MemoryStore) SetResourceStatus(id uint, status domain.ResourceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok {
		return nil
	}
	res.Status = status
	m.resources[id] = res
	return nil
}

// DeleteResource removes the resource and everything attached to it.
func (m *MemoryStore) DeleteResource(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, id)
	delete(m.versions, id)
	delete(m.invites, id)
	delete(m.reviews, id)
	delete(m.links, id)
	filtered := m.resOrder[:0]
	for _, item := range m.resOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.resOrder = filtered
	return nil
}

// AppendVersion assigns the next version number and stores the version.
func (m *MemoryStore) AppendVersion(v domain.ResourceVersion) (domain.ResourceVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxNumber := 0
	for _, existing := range m.versions[v.ResourceID] {
		if existing.VersionNumber > maxNumber {
			maxNumber = existing.VersionNumber
		}
	}
	m.nextVersion++
	v.ID = m.nextVersion
	v.VersionNumber = maxNumber + 1
	m.versions[v.ResourceID] = append(m.versions[v.ResourceID], v)
	return v, nil
}

// LatestVersion returns the highest-numbered version.
func (m *MemoryStore) LatestVersion(resourceID uint) (domain.ResourceVersion, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.versions[resourceID]
	if len(versions) == 0 {
		return domain.ResourceVersion{}, false, nil
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return latest, true, nil
}

// ListVersions returns versions ordered by version number.
func (m *MemoryStore) ListVersions(resourceID uint) ([]domain.ResourceVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := append([]domain.ResourceVersion(nil), m.versions[resourceID]...)
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNumber < versions[j].VersionNumber
	})
	return versions, nil
}

// AddInvite appends a collaboration invite.
func (m *MemoryStore) AddInvite(inv domain.CollaborationInvite) (domain.CollaborationInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextInvite++
	inv.ID = m.nextInvite
	m.invites[inv.ResourceID] = append(m.invites[inv.ResourceID], inv)
	return inv, nil
}

// ListInvites returns invites newest-first.
func (m *MemoryStore) ListInvites(resourceID uint) ([]domain.CollaborationInvite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	invites := append([]domain.CollaborationInvite(nil), m.invites[resourceID]...)
	sort.Slice(invites, func(i, j int) bool {
		if !invites[i].CreatedAt.Equal(invites[j].CreatedAt) {
			return invites[i].CreatedAt.After(invites[j].CreatedAt)
		}
		return invites[i].ID > invites[j].ID
	})
	return invites, nil
}

// RecordReview appends the review and flips the resource status.
func (m *MemoryStore) RecordReview(rev domain.Review, newStatus domain.ResourceStatus) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReview++
	rev.ID = m.nextReview
	m.reviews[rev.ResourceID] = append(m.reviews[rev.ResourceID], rev)
	if res, ok := m.resources[rev.ResourceID]; ok {
		res.Status = newStatus
		m.resources[rev.ResourceID] = res
	}
	return rev, nil
}

// ListReviews returns the review log newest-first.
func (m *MemoryStore) ListReviews(resourceID uint) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reviews := append([]domain.Review(nil), m.reviews[resourceID]...)
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].CreatedAt.Equal(reviews[j].CreatedAt) {
			return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
		}
		return reviews[i].ID > reviews[j].ID
	})
	return reviews, nil
}

// EnsureLink returns the existing link or creates one.
func (m *MemoryStore) EnsureLink(resourceID uint, url string) (domain.LtiLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[resourceID]; ok {
		return link, nil
	}
	m.nextLink++
	link := domain.LtiLink{ID: m.nextLink, ResourceID: resourceID, URL: url}
	m.links[resourceID] = link
	return link, nil
}

// GetLink returns the launch link for a resource.
func (m *MemoryStore) GetLink(resourceID uint) (domain.LtiLink, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[resourceID]
	return link, ok, nil
}
