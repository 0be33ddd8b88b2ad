package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance-moving operation.
type TransactionType string

const (
	TxSend    TransactionType = "send"
	TxReceive TransactionType = "receive"
	TxBuy     TransactionType = "buy"
	TxSell    TransactionType = "sell"
	TxSwap    TransactionType = "swap"
)

// TransactionStatus is the lifecycle status of a transaction.
// Confirmed and failed are terminal.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// DefaultAssets are the wallets seeded for every new user.
var DefaultAssets = []string{"BTC", "ETH", "USDT"}

// WalletModel is the GORM model for the wallets table.
// At most one active wallet exists per (user, asset).
type WalletModel struct {
	ID               string          `gorm:"type:varchar(36);primaryKey"`
	UserID           string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_wallet_user_asset"`
	Asset            string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_wallet_user_asset;index"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"`
	FrozenBalance    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"`
	Address          string          `gorm:"type:varchar(128)"`
	Active           bool            `gorm:"not null;default:true"`
	LastActivity     time.Time       `gorm:"autoCreateTime"`
	CreatedAt        time.Time       `gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for WalletModel.
func (WalletModel) TableName() string {
	return "wallets"
}

// ToDomain converts WalletModel to domain Wallet.
func (m *WalletModel) ToDomain() *Wallet {
	return &Wallet{
		ID:               m.ID,
		UserID:           m.UserID,
		Asset:            m.Asset,
		AvailableBalance: m.AvailableBalance,
		FrozenBalance:    m.FrozenBalance,
		Address:          m.Address,
		Active:           m.Active,
		LastActivity:     m.LastActivity,
	}
}

// Wallet represents a per-user, per-asset balance record.
type Wallet struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Asset            string          `json:"asset"`
	AvailableBalance decimal.Decimal `json:"balance"`
	FrozenBalance    decimal.Decimal `json:"frozen_balance"`
	Address          string          `json:"address"`
	Active           bool            `json:"active"`
	LastActivity     time.Time       `json:"last_activity"`
}

// TransactionModel is the GORM model for the transactions table.
type TransactionModel struct {
	ID          string            `gorm:"type:varchar(36);primaryKey"`
	FromUserID  string            `gorm:"type:varchar(36);not null;index"`
	ToUserID    string            `gorm:"type:varchar(36);not null;index"`
	Asset       string            `gorm:"type:varchar(10);not null;index"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,8);not null"`
	Fee         decimal.Decimal   `gorm:"type:decimal(20,8);not null;default:0"`
	Type        TransactionType   `gorm:"type:varchar(16);not null"`
	Status      TransactionStatus `gorm:"type:varchar(16);not null;default:pending;index"`
	TxHash      string            `gorm:"type:varchar(128)"`
	Description string            `gorm:"type:text"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for TransactionModel.
func (TransactionModel) TableName() string {
	return "transactions"
}

// ToDomain converts TransactionModel to domain Transaction.
func (m *TransactionModel) ToDomain() *Transaction {
	return &Transaction{
		ID:          m.ID,
		FromUserID:  m.FromUserID,
		ToUserID:    m.ToUserID,
		Asset:       m.Asset,
		Amount:      m.Amount,
		Fee:         m.Fee,
		Type:        m.Type,
		Status:      m.Status,
		TxHash:      m.TxHash,
		Description: m.Description,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
	}
}

// Transaction represents an auditable balance-moving operation.
type Transaction struct {
	ID          string            `json:"id"`
	FromUserID  string            `json:"from_user_id"`
	ToUserID    string            `json:"to_user_id"`
	Asset       string            `json:"asset"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	TxHash      string            `json:"tx_hash,omitempty"`
	Description string            `json:"description,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SendRequest represents a wallet transfer request.
type SendRequest struct {
	To       string          `json:"to" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Currency string          `json:"currency" binding:"required,min=2,max=10"`
	Password string          `json:"password" binding:"required"`
}

// BalanceResponse is a wallet decorated with a quoted price.
type BalanceResponse struct {
	Wallet
	Price    decimal.Decimal `json:"price"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// TransactionResponse is a transaction decorated with direction and
// counterparty from the point of view of the requesting user.
type TransactionResponse struct {
	Transaction
	Direction    string        `json:"direction"` // "sent" or "received"
	Counterparty *UserResponse `json:"counterparty,omitempty"`
}
