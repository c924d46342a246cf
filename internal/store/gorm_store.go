package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"openshare/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ResourceModel{},
		&ResourceVersionModel{},
		&CollaborationInviteModel{},
		&ReviewModel{},
		&LtiLinkModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// UpsertUserByEmail finds a user by email or creates one. The unique index
// on email makes concurrent creates converge on a single row.
func (s *GormStore) UpsertUserByEmail(u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	if model.ID == 0 {
		// Conflict path: the row already existed, fetch it.
		var existing UserModel
		if err := s.db.Where("email = ?", u.Email).First(&existing).Error; err != nil {
			return domain.User{}, err
		}
		return userFromModel(existing), nil
	}
	return userFromModel(model), nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id uint) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetUserRole updates an existing user's role.
func (s *GormStore) SetUserRole(id uint, role domain.UserRole) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).Update("role", string(role)).Error
}

// CreateResource inserts the resource, version 1, and the optional invite
// in a single transaction so a failure leaves no partial rows behind.
func (s *GormStore) CreateResource(res domain.Resource, version domain.ResourceVersion, invite *domain.CollaborationInvite) (domain.Resource, error) {
	model := resourceToModel(res)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		versionModel, err := versionToModel(version)
		if err != nil {
			return err
		}
		versionModel.ResourceID = model.ID
		if err := tx.Create(&versionModel).Error; err != nil {
			return err
		}
		if invite != nil {
			inviteModel := inviteToModel(*invite)
			inviteModel.ResourceID = model.ID
			if err := tx.Create(&inviteModel).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Resource{}, err
	}
	return resourceFromModel(model), nil
}

// GetResource retrieves a resource by ID.
func (s *GormStore) GetResource(id uint) (domain.Resource, bool, error) {
	var model ResourceModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Resource{}, false, nil
		}
		return domain.Resource{}, false, err
	}
	return resourceFromModel(model), true, nil
}

// ListResources returns all resources ordered by created_at.
func (s *GormStore) ListResources() ([]domain.Resource, error) {
	return s.listResources("created_at ASC, id ASC")
}

// ListResourcesByStatus returns resources filtered by status.
func (s *GormStore) ListResourcesByStatus(status domain.ResourceStatus) ([]domain.Resource, error) {
	return s.listResources("created_at ASC, id ASC", "status = ?", string(status))
}

func (s *GormStore) listResources(order string, conds ...any) ([]domain.Resource, error) {
	var models []ResourceModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Resource, 0, len(models))
	for _, m := range models {
		res = append(res, resourceFromModel(m))
	}
	return res, nil
}

// SetResourceStatus updates the lifecycle status.
func (s *GormStore) SetResourceStatus(id uint, status domain.ResourceStatus) error {
	return s.db.Model(&ResourceModel{}).
		Where("id = ?", id).
		Update("status", string(status)).Error
}

// DeleteResource removes the resource together with its versions, invites,
// reviews, and launch link.
func (s *GormStore) DeleteResource(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ResourceVersionModel{}, "resource_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&CollaborationInviteModel{}, "resource_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ReviewModel{}, "resource_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&LtiLinkModel{}, "resource_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ResourceModel{}, "id = ?", id).Error
	})
}

// AppendVersion inserts a new version numbered max+1 for the resource.
func (s *GormStore) AppendVersion(v domain.ResourceVersion) (domain.ResourceVersion, error) {
	model, err := versionToModel(v)
	if err != nil {
		return domain.ResourceVersion{}, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		if err := tx.Model(&ResourceVersionModel{}).
			Where("resource_id = ?", v.ResourceID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxNumber).Error; err != nil {
			return err
		}
		model.VersionNumber = maxNumber + 1
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.ResourceVersion{}, err
	}
	return versionFromModel(model)
}

// LatestVersion returns the version with the highest number.
func (s *GormStore) LatestVersion(resourceID uint) (domain.ResourceVersion, bool, error) {
	var model ResourceVersionModel
	err := s.db.Where("resource_id = ?", resourceID).
		Order("version_number DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ResourceVersion{}, false, nil
		}
		return domain.ResourceVersion{}, false, err
	}
	version, err := versionFromModel(model)
	if err != nil {
		return domain.ResourceVersion{}, false, err
	}
	return version, true, nil
}

// ListVersions returns versions ordered by version_number.
func (s *GormStore) ListVersions(resourceID uint) ([]domain.ResourceVersion, error) {
	var models []ResourceVersionModel
	if err := s.db.Where("resource_id = ?", resourceID).
		Order("version_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ResourceVersion, 0, len(models))
	for _, m := range models {
		version, err := versionFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, version)
	}
	return res, nil
}

// AddInvite appends a collaboration invite.
func (s *GormStore) AddInvite(inv domain.CollaborationInvite) (domain.CollaborationInvite, error) {
	model := inviteToModel(inv)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.CollaborationInvite{}, err
	}
	return inviteFromModel(model), nil
}

// ListInvites returns invites for a resource, newest first.
func (s *GormStore) ListInvites(resourceID uint) ([]domain.CollaborationInvite, error) {
	var models []CollaborationInviteModel
	if err := s.db.Where("resource_id = ?", resourceID).
		Order("created_at DESC, id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CollaborationInvite, 0, len(models))
	for _, m := range models {
		res = append(res, inviteFromModel(m))
	}
	return res, nil
}

// RecordReview appends the review and flips the resource status atomically.
func (s *GormStore) RecordReview(rev domain.Review, newStatus domain.ResourceStatus) (domain.Review, error) {
	model := reviewToModel(rev)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ResourceModel{}).
			Where("id = ?", rev.ResourceID).
			Update("status", string(newStatus)).Error
	})
	if err != nil {
		return domain.Review{}, err
	}
	return reviewFromModel(model), nil
}

// ListReviews returns the review log for a resource, newest first.
func (s *GormStore) ListReviews(resourceID uint) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("resource_id = ?", resourceID).
		Order("created_at DESC, id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

// EnsureLink returns the existing launch link or creates one. The unique
// index on resource_id guarantees at most one row per resource.
func (s *GormStore) EnsureLink(resourceID uint, url string) (domain.LtiLink, error) {
	model := LtiLinkModel{ResourceID: resourceID, URL: url}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.LtiLink{}, err
	}
	if model.ID == 0 {
		var existing LtiLinkModel
		if err := s.db.Where("resource_id = ?", resourceID).First(&existing).Error; err != nil {
			return domain.LtiLink{}, err
		}
		return linkFromModel(existing), nil
	}
	return linkFromModel(model), nil
}

// GetLink returns the launch link for a resource.
func (s *GormStore) GetLink(resourceID uint) (domain.LtiLink, bool, error) {
	var model LtiLinkModel
	if err := s.db.Where("resource_id = ?", resourceID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.LtiLink{}, false, nil
		}
		return domain.LtiLink{}, false, err
	}
	return linkFromModel(model), true, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Institution: u.Institution,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Institution: m.Institution,
		Role:        domain.UserRole(m.Role),
		CreatedAt:   m.CreatedAt,
	}
}

func resourceToModel(r domain.Resource) ResourceModel {
	return ResourceModel{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      string(r.Status),
		License:     r.License,
		CreatedByID: r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

func resourceFromModel(m ResourceModel) domain.Resource {
	return domain.Resource{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.ResourceStatus(m.Status),
		License:     m.License,
		CreatedBy:   m.CreatedByID,
		CreatedAt:   m.CreatedAt,
	}
}

func versionToModel(v domain.ResourceVersion) (ResourceVersionModel, error) {
	model := ResourceVersionModel{
		ID:            v.ID,
		ResourceID:    v.ResourceID,
		VersionNumber: v.VersionNumber,
		Content:       v.Content,
		CreatedByID:   v.CreatedBy,
		CreatedAt:     v.CreatedAt,
	}
	if len(v.Metadata) > 0 {
		raw, err := json.Marshal(v.Metadata)
		if err != nil {
			return ResourceVersionModel{}, fmt.Errorf("marshal version metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func versionFromModel(m ResourceVersionModel) (domain.ResourceVersion, error) {
	version := domain.ResourceVersion{
		ID:            m.ID,
		ResourceID:    m.ResourceID,
		VersionNumber: m.VersionNumber,
		Content:       m.Content,
		CreatedBy:     m.CreatedByID,
		CreatedAt:     m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &version.Metadata); err != nil {
			return domain.ResourceVersion{}, fmt.Errorf("unmarshal version metadata: %w", err)
		}
	}
	return version, nil
}

func inviteToModel(i domain.CollaborationInvite) CollaborationInviteModel {
	return CollaborationInviteModel{
		ID:                i.ID,
		ResourceID:        i.ResourceID,
		CollaboratorEmail: i.CollaboratorEmail,
		Message:           i.Message,
		Status:            string(i.Status),
		CreatedAt:         i.CreatedAt,
	}
}

func inviteFromModel(m CollaborationInviteModel) domain.CollaborationInvite {
	return domain.CollaborationInvite{
		ID:                m.ID,
		ResourceID:        m.ResourceID,
		CollaboratorEmail: m.CollaboratorEmail,
		Message:           m.Message,
		Status:            domain.InviteStatus(m.Status),
		CreatedAt:         m.CreatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		ReviewerID: r.ReviewerID,
		Decision:   string(r.Decision),
		Comments:   r.Comments,
		CreatedAt:  r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:         m.ID,
		ResourceID: m.ResourceID,
		ReviewerID: m.ReviewerID,
		Decision:   domain.ReviewDecision(m.Decision),
		Comments:   m.Comments,
		CreatedAt:  m.CreatedAt,
	}
}

func linkFromModel(m LtiLinkModel) domain.LtiLink {
	return domain.LtiLink{
		ID:         m.ID,
		ResourceID: m.ResourceID,
		URL:        m.URL,
	}
}
