package app

import (
	"fmt"
	"log/slog"

	"openshare/pkg/domain"
)

// GenerateLink returns the launch link for an approved resource, creating
// it on first call. Non-approved resources are rejected.
func (a *App) GenerateLink(id uint) (domain.LtiLink, error) {
	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.LtiLink{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.LtiLink{}, ErrNotFound
	}
	if res.Status != domain.StatusApproved {
		return domain.LtiLink{}, fmt.Errorf("%w: links require an approved resource, got %s", ErrInvalidState, res.Status)
	}
	link, err := a.store.EnsureLink(id, fmt.Sprintf("/lti/%d", id))
	if err != nil {
		return domain.LtiLink{}, fmt.Errorf("ensure link: %w", err)
	}
	return link, nil
}

// ResolveLaunch returns an approved resource with its latest version for
// an LMS launch. The launch cache is consulted first.
func (a *App) ResolveLaunch(id uint) (domain.LaunchSnapshot, error) {
	if snap, ok, err := a.cache.Get(id); err != nil {
		slog.Warn("launch cache read failed", "resource_id", id, "err", err)
	} else if ok {
		return snap, nil
	}

	res, ok, err := a.store.GetResource(id)
	if err != nil {
		return domain.LaunchSnapshot{}, fmt.Errorf("get resource: %w", err)
	}
	if !ok {
		return domain.LaunchSnapshot{}, ErrNotFound
	}
	if res.Status != domain.StatusApproved {
		return domain.LaunchSnapshot{}, fmt.Errorf("%w: launches require an approved resource, got %s", ErrInvalidState, res.Status)
	}
	version, ok, err := a.store.LatestVersion(id)
	if err != nil {
		return domain.LaunchSnapshot{}, fmt.Errorf("latest version: %w", err)
	}
	if !ok {
		return domain.LaunchSnapshot{}, ErrNoVersions
	}
	snap := domain.LaunchSnapshot{Resource: res, Version: version}
	if err := a.cache.Set(snap); err != nil {
		slog.Warn("launch cache write failed", "resource_id", id, "err", err)
	}
	return snap, nil
}

// LtiHome lists launchable (approved) resources for the LMS entry page.
func (a *App) LtiHome() ([]domain.Resource, error) {
	return a.store.ListResourcesByStatus(domain.StatusApproved)
}
