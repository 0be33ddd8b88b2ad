package service

import (
	"context"
	"errors"
	"time"

	"github.com/nebulo-im/nebulo/internal/audit"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/pkg/log"
)

var ErrMiniAppNotFound = errors.New("mini app not found")

// miniAppServiceImpl implements MiniAppService.
type miniAppServiceImpl struct {
	repo repository.MiniAppRepository
}

// NewMiniAppService creates a new mini-app service.
func NewMiniAppService(repo repository.MiniAppRepository) MiniAppService {
	return &miniAppServiceImpl{repo: repo}
}

// List returns the published catalog decorated with the caller's
// installation state.
func (s *miniAppServiceImpl) List(ctx context.Context, userID, category, search string) ([]*domain.MiniAppResponse, error) {
	apps, err := s.repo.List(ctx, category, search)
	if err != nil {
		return nil, err
	}

	installs, err := s.repo.Installations(ctx, userID)
	if err != nil {
		return nil, err
	}

	return decorateApps(apps, installs), nil
}

// ListInstalled returns the caller's installed apps.
func (s *miniAppServiceImpl) ListInstalled(ctx context.Context, userID string) ([]*domain.MiniAppResponse, error) {
	apps, installs, err := s.repo.ListInstalled(ctx, userID)
	if err != nil {
		return nil, err
	}
	return decorateApps(apps, installs), nil
}

// Install adds a catalog app to the caller's collection. Installing an
// already-installed app is a no-op.
func (s *miniAppServiceImpl) Install(ctx context.Context, userID, appID string) error {
	if err := s.repo.Install(ctx, userID, appID); err != nil {
		if errors.Is(err, repository.ErrMiniAppNotFound) {
			return ErrMiniAppNotFound
		}
		return err
	}
	audit.LogWithDetail(ctx, audit.ActionInstallApp, userID, appID, "mini app installed")
	return nil
}

// Uninstall removes an app from the caller's collection.
func (s *miniAppServiceImpl) Uninstall(ctx context.Context, userID, appID string) error {
	if err := s.repo.Uninstall(ctx, userID, appID); err != nil {
		if errors.Is(err, repository.ErrMiniAppNotFound) {
			return ErrMiniAppNotFound
		}
		return err
	}
	audit.LogWithDetail(ctx, audit.ActionUninstallApp, userID, appID, "mini app uninstalled")
	return nil
}

// Launch records a use of an installed app and returns its entry.
func (s *miniAppServiceImpl) Launch(ctx context.Context, userID, appID string) (*domain.MiniAppResponse, error) {
	app, err := s.repo.GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrMiniAppNotFound) {
			return nil, ErrMiniAppNotFound
		}
		return nil, err
	}

	installs, err := s.repo.Installations(ctx, userID)
	if err != nil {
		return nil, err
	}
	install, ok := installs[appID]
	if !ok {
		return nil, ErrMiniAppNotFound
	}

	now := time.Now().UTC()
	if err := s.repo.MarkUsed(ctx, userID, appID, now); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to record mini app use")
	}
	install.LastUsed = &now

	resp := &domain.MiniAppResponse{
		MiniApp:     *app,
		Installed:   true,
		InstalledAt: &install.InstalledAt,
		LastUsed:    install.LastUsed,
	}
	return resp, nil
}

func decorateApps(apps []*domain.MiniApp, installs map[string]*domain.InstallationModel) []*domain.MiniAppResponse {
	responses := make([]*domain.MiniAppResponse, len(apps))
	for i, app := range apps {
		resp := &domain.MiniAppResponse{MiniApp: *app}
		if install, ok := installs[app.ID]; ok {
			resp.Installed = true
			resp.InstalledAt = &install.InstalledAt
			resp.LastUsed = install.LastUsed
		}
		responses[i] = resp
	}
	return responses
}
