package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"openshare/internal/cache"
	"openshare/internal/notify"
	"openshare/internal/store"
	"openshare/pkg/domain"
)

const defaultLicense = "CC BY"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Cache       cache.LaunchCache
	Notifier    notify.Publisher
}

// App is the core application service wiring storage, launch cache, and
// event publishing together.
type App struct {
	store  store.Store
	cache  cache.LaunchCache
	notify notify.Publisher
}

// New constructs the application. A nil Store falls back to Postgres via
// DatabaseURL; nil Cache and Notifier fall back to no-ops.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required (no in-memory store allowed)")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	launchCache := cfg.Cache
	if launchCache == nil {
		launchCache = cache.NoopLaunchCache{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NoopPublisher{}
	}
	return &App{
		store:  dataStore,
		cache:  launchCache,
		notify: notifier,
	}, nil
}

// CreateResourceInput carries everything needed to create a draft resource
// with its first version and an optional collaboration invite.
type CreateResourceInput struct {
	Title             string
	Description       string
	Content           string
	AuthorName        string
	AuthorEmail       string
	Institution       string
	License           string
	CollaboratorEmail string
	Message           string
	Metadata          map[string]string
}

// CreateResource upserts the author, then writes the draft resource,
// version 1, and the optional pending invite in one transaction.
func (a *App) CreateResource(in CreateResourceInput) (domain.Resource, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	in.AuthorEmail = normalizeEmail(in.AuthorEmail)
	if in.Title == "" {
		return domain.Resource{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Content == "" {
		return domain.Resource{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if in.AuthorName == "" {
		return domain.Resource{}, fmt.Errorf("%w: author name is required", ErrValidation)
	}
	if in.AuthorEmail == "" {
		return domain.Resource{}, fmt.Errorf("%w: author email is required", ErrValidation)
	}
	license := strings.TrimSpace(in.License)
	if license == "" {
		license = defaultLicense
	}

	author, err := a.store.UpsertUserByEmail(domain.User{
		Name:        in.AuthorName,
		Email:       in.AuthorEmail,
		Institution: strings.TrimSpace(in.Institution),
		Role:        domain.RoleAuthor,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Resource{}, fmt.Errorf("upsert author: %w", err)
	}

	now := time.Now().UTC()
	res := domain.Resource{
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.StatusDraft,
		License:     license,
		CreatedBy:   author.ID,
		CreatedAt:   now,
	}
	version := domain.ResourceVersion{
		VersionNumber: 1,
		Content:       in.Content,
		Metadata:      in.Metadata,
		CreatedBy:     author.ID,
		CreatedAt:     now,
	}

	var invite *domain.CollaborationInvite
	if email := normalizeEmail(in.CollaboratorEmail); email != "" {
		invite = &domain.CollaborationInvite{
			CollaboratorEmail: email,
			Message:           strings.TrimSpace(in.Message),
			Status:            domain.InvitePending,
			CreatedAt:         now,
		}
	}

	created, err := a.store.CreateResource(res, version, invite)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("create resource: %w", err)
	}
	if invite != nil {
		a.publishInvite(created, invite.CollaboratorEmail, invite.Message, now)
	}
	return created, nil
}

// SubmitForReview transitions a draft resource to in_review. Submitting a
// resource that is already in_review or approved is a no-op, not an error.
func (a *App) SubmitForReview(id uint) (domain.Resource, error) {
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.Resource{}, ErrNotFound
	}
	if res.Status != domain.StatusDraft {
		return res, nil
	}
	if err := a.store.SetResourceStatus(id, domain.StatusInReview); err != nil {
		return domain.Resource{}, fmt.Errorf("set status: %w", err)
	}
	res.Status = domain.StatusInReview
	return res, nil
}

// InviteCollaborator appends a pending invite. Repeat invites to the same
// address are allowed.
func (a *App) InviteCollaborator(id uint, email, message string) (domain.CollaborationInvite, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.CollaborationInvite{}, fmt.Errorf("%w: collaborator email is required", ErrValidation)
	}
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.CollaborationInvite{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.CollaborationInvite{}, ErrNotFound
	}
	now := time.Now().UTC()
	invite, err := a.store.AddInvite(domain.CollaborationInvite{
		ResourceID:        id,
		CollaboratorEmail: email,
		Message:           strings.TrimSpace(message),
		Status:            domain.InvitePending,
		CreatedAt:         now,
	})
	if err != nil {
		return domain.CollaborationInvite{}, fmt.Errorf("add invite: %w", err)
	}
	a.publishInvite(res, invite.CollaboratorEmail, invite.Message, now)
	return invite, nil
}

// ListResources returns all resources.
func (a *App) ListResources() ([]domain.Resource, error) {
	return a.store.ListResources()
}

// GetResource returns a resource with its invites, newest first.
func (a *App) GetResource(id uint) (domain.Resource, []domain.CollaborationInvite, error) {
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.Resource{}, nil, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.Resource{}, nil, ErrNotFound
	}
	invites, err := a.store.ListInvites(id)
	if err != nil {
		return domain.Resource{}, nil, fmt.Errorf("list invites: %w", err)
	}
	return res, invites, nil
}

// UpdateContent appends a new immutable version with the next version
// number. Approved resources are frozen; edits require a draft or
// in_review status.
func (a *App) UpdateContent(id uint, content, authorEmail string, metadata map[string]string) (domain.ResourceVersion, error) {
	if content == "" {
		return domain.ResourceVersion{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	authorEmail = normalizeEmail(authorEmail)
	if authorEmail == "" {
		return domain.ResourceVersion{}, fmt.Errorf("%w: author email is required", ErrValidation)
	}
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.ResourceVersion{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.ResourceVersion{}, ErrNotFound
	}
	if res.Status == domain.StatusApproved {
		return domain.ResourceVersion{}, fmt.Errorf("%w: approved resources are frozen", ErrInvalidState)
	}
	author, ok, err := a.store.GetUserByEmail(authorEmail)
	if err != nil {
		return domain.ResourceVersion{}, fmt.Errorf("get author: %w", err)
	}
	if !ok {
		return domain.ResourceVersion{}, fmt.Errorf("%w: unknown author %s", ErrValidation, authorEmail)
	}
	version, err := a.store.AppendVersion(domain.ResourceVersion{
		ResourceID: id,
		Content:    content,
		Metadata:   metadata,
		CreatedBy:  author.ID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.ResourceVersion{}, fmt.Errorf("append version: %w", err)
	}
	if err := a.cache.Invalidate(id); err != nil {
		slog.Warn("failed to invalidate launch cache", "resource_id", id, "err", err)
	}
	return version, nil
}

// DeleteResource removes a resource and everything attached to it.
func (a *App) DeleteResource(id uint) error {
	_, ok, err := a.store.GetResource(id)
	if err != nil {
		return fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := a.store.DeleteResource(id); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if err := a.cache.Invalidate(id); err != nil {
		slog.Warn("failed to invalidate launch cache", "resource_id", id, "err", err)
	}
	return nil
}

func (a *App) publishInvite(res domain.Resource, email, message string, at time.Time) {
	err := a.notify.InviteCreated(notify.InviteEvent{
		ResourceID:        res.ID,
		ResourceTitle:     res.Title,
		CollaboratorEmail: email,
		Message:           message,
		CreatedAt:         at,
	})
	if err != nil {
		slog.Warn("failed to publish invite event", "resource_id", res.ID, "err", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
