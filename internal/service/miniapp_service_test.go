package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
)

func seedMiniApp(t *testing.T, db *gorm.DB, id, name string, category domain.MiniAppCategory, published bool) {
	t.Helper()

	require.NoError(t, db.Create(&domain.MiniAppModel{
		ID:        id,
		Name:      name,
		Version:   "1.0.0",
		Category:  category,
		Published: published,
	}).Error)
}

func newMiniAppService(t *testing.T) (MiniAppService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	return NewMiniAppService(repository.NewGormMiniAppRepository(db)), db
}

func TestList_Shows_Published_Apps_With_Install_State(t *testing.T) {
	req := require.New(t)
	apps, db := newMiniAppService(t)
	ctx := context.Background()

	seedMiniApp(t, db, "app-1", "Ledger Lens", domain.CategoryFinance, true)
	seedMiniApp(t, db, "app-2", "Pixel Duel", domain.CategoryGames, true)
	seedMiniApp(t, db, "app-3", "Hidden Draft", domain.CategoryGames, false)

	req.NoError(apps.Install(ctx, "alice", "app-1"))

	catalog, err := apps.List(ctx, "alice", "", "")
	req.NoError(err)
	req.Len(catalog, 2, "unpublished apps stay hidden")

	byID := map[string]*domain.MiniAppResponse{}
	for _, app := range catalog {
		byID[app.ID] = app
	}
	req.True(byID["app-1"].Installed)
	req.NotNil(byID["app-1"].InstalledAt)
	req.False(byID["app-2"].Installed)

	games, err := apps.List(ctx, "alice", string(domain.CategoryGames), "")
	req.NoError(err)
	req.Len(games, 1)
	req.Equal("Pixel Duel", games[0].Name)

	matched, err := apps.List(ctx, "alice", "", "ledger")
	req.NoError(err)
	req.Len(matched, 1)
	req.Equal("app-1", matched[0].ID)
}

func TestInstall_Is_Idempotent_And_Counts_Once(t *testing.T) {
	req := require.New(t)
	apps, db := newMiniAppService(t)
	ctx := context.Background()

	seedMiniApp(t, db, "app-1", "Ledger Lens", domain.CategoryFinance, true)

	req.NoError(apps.Install(ctx, "alice", "app-1"))
	req.NoError(apps.Install(ctx, "alice", "app-1"))

	var model domain.MiniAppModel
	req.NoError(db.First(&model, "id = ?", "app-1").Error)
	req.Equal(1, model.InstallCount)

	req.ErrorIs(apps.Install(ctx, "alice", "no-such-app"), ErrMiniAppNotFound)
}

func TestUninstall_Then_Reinstall(t *testing.T) {
	req := require.New(t)
	apps, db := newMiniAppService(t)
	ctx := context.Background()

	seedMiniApp(t, db, "app-1", "Ledger Lens", domain.CategoryFinance, true)

	req.NoError(apps.Install(ctx, "alice", "app-1"))
	req.NoError(apps.Uninstall(ctx, "alice", "app-1"))

	installed, err := apps.ListInstalled(ctx, "alice")
	req.NoError(err)
	req.Empty(installed)

	req.NoError(apps.Install(ctx, "alice", "app-1"))
	installed, err = apps.ListInstalled(ctx, "alice")
	req.NoError(err)
	req.Len(installed, 1)
	req.Equal("app-1", installed[0].ID)
}

func TestLaunch_Requires_Installation(t *testing.T) {
	req := require.New(t)
	apps, db := newMiniAppService(t)
	ctx := context.Background()

	seedMiniApp(t, db, "app-1", "Ledger Lens", domain.CategoryFinance, true)

	_, err := apps.Launch(ctx, "alice", "app-1")
	req.ErrorIs(err, ErrMiniAppNotFound)

	req.NoError(apps.Install(ctx, "alice", "app-1"))

	launched, err := apps.Launch(ctx, "alice", "app-1")
	req.NoError(err)
	req.Equal("Ledger Lens", launched.Name)
	req.True(launched.Installed)
	req.NotNil(launched.LastUsed)
}
