package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MiniAppCategory classifies catalog entries.
type MiniAppCategory string

const (
	CategoryProductivity  MiniAppCategory = "productivity"
	CategoryGames         MiniAppCategory = "games"
	CategoryFinance       MiniAppCategory = "finance"
	CategorySocial        MiniAppCategory = "social"
	CategoryUtilities     MiniAppCategory = "utilities"
	CategoryEntertainment MiniAppCategory = "entertainment"
)

// MiniAppModel is the GORM model for the mini_apps catalog table.
type MiniAppModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	Name         string          `gorm:"type:varchar(100);not null"`
	Description  string          `gorm:"type:text"`
	Icon         string          `gorm:"type:varchar(255)"`
	Version      string          `gorm:"type:varchar(20);default:1.0.0"`
	Category     MiniAppCategory `gorm:"type:varchar(20);not null;index"`
	Rating       decimal.Decimal `gorm:"type:decimal(2,1);default:0"`
	InstallCount int             `gorm:"not null;default:0"`
	DeveloperID  string          `gorm:"type:varchar(36);index"`
	Published    bool            `gorm:"not null;default:false;index"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for MiniAppModel.
func (MiniAppModel) TableName() string {
	return "mini_apps"
}

// ToDomain converts MiniAppModel to domain MiniApp.
func (m *MiniAppModel) ToDomain() *MiniApp {
	return &MiniApp{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		Icon:         m.Icon,
		Version:      m.Version,
		Category:     m.Category,
		Rating:       m.Rating,
		InstallCount: m.InstallCount,
		DeveloperID:  m.DeveloperID,
		Published:    m.Published,
		CreatedAt:    m.CreatedAt,
	}
}

// MiniApp is a third-party application in the installable catalog.
type MiniApp struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Icon         string          `json:"icon,omitempty"`
	Version      string          `json:"version"`
	Category     MiniAppCategory `json:"category"`
	Rating       decimal.Decimal `json:"rating"`
	InstallCount int             `json:"install_count"`
	DeveloperID  string          `json:"developer_id,omitempty"`
	Published    bool            `json:"published"`
	CreatedAt    time.Time       `json:"created_at"`
}

// InstallationModel is the GORM model for per-user installations.
// Uninstalling deactivates the row; reinstalling reactivates it.
type InstallationModel struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	UserID      string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_install_user_app"`
	MiniAppID   string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_install_user_app"`
	Active      bool       `gorm:"not null;default:true"`
	InstalledAt time.Time  `gorm:"autoCreateTime"`
	LastUsed    *time.Time ``
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for InstallationModel.
func (InstallationModel) TableName() string {
	return "user_mini_apps"
}

// MiniAppResponse is a catalog entry decorated with the caller's
// installation state.
type MiniAppResponse struct {
	MiniApp
	Installed   bool       `json:"installed"`
	InstalledAt *time.Time `json:"installed_at,omitempty"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}
