package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// GormWalletRepository implements WalletRepository using GORM.
type GormWalletRepository struct {
	db *gorm.DB
}

// NewGormWalletRepository creates a new GORM-based wallet repository.
func NewGormWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// GetOrCreate returns the active wallet for (user, asset), creating a
// zero-balance one if none exists.
func (r *GormWalletRepository) GetOrCreate(ctx context.Context, userID, asset, address string) (*domain.Wallet, error) {
	wallet, err := r.GetActive(ctx, userID, asset)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	model := &domain.WalletModel{
		ID:               uuid.New().String(),
		UserID:           userID,
		Asset:            asset,
		AvailableBalance: decimal.Zero,
		FrozenBalance:    decimal.Zero,
		Address:          address,
		Active:           true,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		// Lost a creation race; the winner's row is authoritative.
		if existing, getErr := r.GetActive(ctx, userID, asset); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetActive returns the active wallet for (user, asset).
func (r *GormWalletRepository) GetActive(ctx context.Context, userID, asset string) (*domain.Wallet, error) {
	var model domain.WalletModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND asset = ? AND active = ?", userID, asset, true).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByUser returns all active wallets of a user.
func (r *GormWalletRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	var models []domain.WalletModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("asset").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}

	wallets := make([]*domain.Wallet, len(models))
	for i := range models {
		wallets[i] = models[i].ToDomain()
	}
	return wallets, nil
}

// Transfer debits total from the sender wallet and credits amount to
// the receiver wallet as one atomic unit. The debit runs conditionally
// against the row's current balance, so a concurrent spend that drains
// the wallet surfaces as ErrInsufficientFunds with nothing applied.
func (r *GormWalletRepository) Transfer(ctx context.Context, fromWalletID, toWalletID string, total, amount decimal.Decimal) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&domain.WalletModel{}).
			Where("id = ? AND available_balance >= ?", fromWalletID, total).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance - ?", total),
				"last_activity":     now,
			})
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		credit := tx.Model(&domain.WalletModel{}).
			Where("id = ?", toWalletID).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance + ?", amount),
				"last_activity":     now,
			})
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return fmt.Errorf("credit wallet %s: %w", toWalletID, ErrWalletNotFound)
		}
		return nil
	})
}

// CreateTransaction persists a new transaction record.
func (r *GormWalletRepository) CreateTransaction(ctx context.Context, transaction *domain.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}
	if transaction.Status == "" {
		transaction.Status = domain.TxPending
	}

	model := &domain.TransactionModel{
		ID:          transaction.ID,
		FromUserID:  transaction.FromUserID,
		ToUserID:    transaction.ToUserID,
		Asset:       transaction.Asset,
		Amount:      transaction.Amount,
		Fee:         transaction.Fee,
		Type:        transaction.Type,
		Status:      transaction.Status,
		TxHash:      transaction.TxHash,
		Description: transaction.Description,
		CompletedAt: transaction.CompletedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	transaction.CreatedAt = model.CreatedAt
	return nil
}

// SetTransactionStatus transitions a pending transaction. Confirmed and
// failed rows never change again; a write against one reports
// ErrTerminalTransaction.
func (r *GormWalletRepository) SetTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, completedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}

	result := r.db.WithContext(ctx).Model(&domain.TransactionModel{}).
		Where("id = ? AND status = ?", id, domain.TxPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model domain.TransactionModel
		if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		return ErrTerminalTransaction
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (r *GormWalletRepository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var model domain.TransactionModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListTransactions returns a page of a user's transactions, newest
// first, plus the total count.
func (r *GormWalletRepository) ListTransactions(ctx context.Context, userID string, page, limit int) ([]*domain.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.TransactionModel{}).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.TransactionModel
	result := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	transactions := make([]*domain.Transaction, len(models))
	for i := range models {
		transactions[i] = models[i].ToDomain()
	}
	return transactions, total, nil
}
