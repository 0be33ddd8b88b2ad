package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// GormMiniAppRepository implements MiniAppRepository using GORM.
type GormMiniAppRepository struct {
	db *gorm.DB
}

// NewGormMiniAppRepository creates a new GORM-based mini-app repository.
func NewGormMiniAppRepository(db *gorm.DB) *GormMiniAppRepository {
	return &GormMiniAppRepository{db: db}
}

// List returns published catalog entries, optionally filtered by
// category and name search.
func (r *GormMiniAppRepository) List(ctx context.Context, category, search string) ([]*domain.MiniApp, error) {
	query := r.db.WithContext(ctx).Where("published = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var models []domain.MiniAppModel
	result := query.Order("install_count DESC").Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	apps := make([]*domain.MiniApp, len(models))
	for i := range models {
		apps[i] = models[i].ToDomain()
	}
	return apps, nil
}

// GetByID retrieves a catalog entry by ID.
func (r *GormMiniAppRepository) GetByID(ctx context.Context, id string) (*domain.MiniApp, error) {
	var model domain.MiniAppModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMiniAppNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Install creates or reactivates the installation row and bumps the
// catalog install counter. Reinstalling an active app is a no-op.
func (r *GormMiniAppRepository) Install(ctx context.Context, userID, appID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app domain.MiniAppModel
		if err := tx.First(&app, "id = ? AND published = ?", appID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMiniAppNotFound
			}
			return err
		}

		var install domain.InstallationModel
		err := tx.Where("user_id = ? AND mini_app_id = ?", userID, appID).First(&install).Error
		switch {
		case err == nil:
			if install.Active {
				return nil
			}
			if err := tx.Model(&install).Update("active", true).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			install = domain.InstallationModel{
				ID:        uuid.New().String(),
				UserID:    userID,
				MiniAppID: appID,
				Active:    true,
			}
			if err := tx.Create(&install).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return tx.Model(&domain.MiniAppModel{}).
			Where("id = ?", appID).
			Update("install_count", gorm.Expr("install_count + 1")).Error
	})
}

// Uninstall deactivates the installation row.
func (r *GormMiniAppRepository) Uninstall(ctx context.Context, userID, appID string) error {
	result := r.db.WithContext(ctx).Model(&domain.InstallationModel{}).
		Where("user_id = ? AND mini_app_id = ? AND active = ?", userID, appID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMiniAppNotFound
	}
	return nil
}

// Installations returns the user's active installations keyed by app ID.
func (r *GormMiniAppRepository) Installations(ctx context.Context, userID string) (map[string]*domain.InstallationModel, error) {
	var models []domain.InstallationModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	installs := make(map[string]*domain.InstallationModel, len(models))
	for i := range models {
		installs[models[i].MiniAppID] = &models[i]
	}
	return installs, nil
}

// ListInstalled returns the catalog entries the user has installed,
// along with the installation rows keyed by app ID.
func (r *GormMiniAppRepository) ListInstalled(ctx context.Context, userID string) ([]*domain.MiniApp, map[string]*domain.InstallationModel, error) {
	installs, err := r.Installations(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(installs) == 0 {
		return []*domain.MiniApp{}, installs, nil
	}

	appIDs := make([]string, 0, len(installs))
	for id := range installs {
		appIDs = append(appIDs, id)
	}

	var models []domain.MiniAppModel
	result := r.db.WithContext(ctx).
		Where("id IN ?", appIDs).
		Order("name").
		Find(&models)
	if result.Error != nil {
		return nil, nil, result.Error
	}

	apps := make([]*domain.MiniApp, len(models))
	for i := range models {
		apps[i] = models[i].ToDomain()
	}
	return apps, installs, nil
}

// MarkUsed records that the user opened an installed app.
func (r *GormMiniAppRepository) MarkUsed(ctx context.Context, userID, appID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.InstallationModel{}).
		Where("user_id = ? AND mini_app_id = ? AND active = ?", userID, appID, true).
		Update("last_used", at).Error
}
