package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/nebulo-im/nebulo/internal/audit"
	"github.com/nebulo-im/nebulo/internal/domain"
	"github.com/nebulo-im/nebulo/internal/repository"
	"github.com/nebulo-im/nebulo/internal/stream"
	"github.com/nebulo-im/nebulo/pkg/log"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrWrongPassword     = errors.New("wrong password")
	ErrTxNotFound        = errors.New("transaction not found")
)

// Spot quotes for portfolio valuation. A price feed replaces this once
// one exists; the shape of BalanceResponse stays the same.
var assetPrices = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromFloat(43250.50),
	"ETH":  decimal.NewFromFloat(2280.75),
	"USDT": decimal.NewFromInt(1),
}

// walletServiceImpl implements WalletService.
type walletServiceImpl struct {
	repo     repository.WalletRepository
	userRepo repository.UserRepository
	producer stream.Producer
	feeRate  decimal.Decimal

	// pairLocks serializes transfers per (user, asset) pair, ordered so
	// opposite-direction transfers cannot deadlock.
	pairLocks *keyedMutex
}

// NewWalletService creates a new wallet service. feeRate is the
// fraction of each transfer charged on top of the amount.
func NewWalletService(
	repo repository.WalletRepository,
	userRepo repository.UserRepository,
	producer stream.Producer,
	feeRate decimal.Decimal,
) WalletService {
	return &walletServiceImpl{
		repo:      repo,
		userRepo:  userRepo,
		producer:  producer,
		feeRate:   feeRate,
		pairLocks: newKeyedMutex(),
	}
}

// Balances returns the caller's wallets with quoted USD values.
func (s *walletServiceImpl) Balances(ctx context.Context, userID string) ([]*domain.BalanceResponse, error) {
	wallets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.BalanceResponse, len(wallets))
	for i, w := range wallets {
		price := assetPrices[w.Asset]
		responses[i] = &domain.BalanceResponse{
			Wallet:   *w,
			Price:    price,
			USDValue: w.AvailableBalance.Mul(price),
		}
	}
	return responses, nil
}

// Send moves funds to another user. The sender pays amount plus fee;
// the recipient receives exactly amount. The debit and credit commit
// or roll back together, and the transaction record survives either
// way: confirmed on success, failed on a bounced debit.
func (s *walletServiceImpl) Send(ctx context.Context, userID string, req *domain.SendRequest) (*domain.TransactionResponse, error) {
	l := log.Ctx(ctx)

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	sender, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(sender.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionTransferFailed, userID, req.Currency, "transfer rejected: wrong password")
		return nil, ErrWrongPassword
	}

	recipient, err := s.userRepo.GetByIdentifier(ctx, req.To)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == userID {
		return nil, ErrSelfTransfer
	}

	fee := req.Amount.Mul(s.feeRate)
	total := req.Amount.Add(fee)

	senderKey := pairKey(userID, req.Currency)
	recipientKey := pairKey(recipient.ID, req.Currency)
	s.pairLocks.LockPair(senderKey, recipientKey)
	defer s.pairLocks.UnlockPair(senderKey, recipientKey)

	senderWallet, err := s.repo.GetActive(ctx, userID, req.Currency)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if senderWallet.AvailableBalance.LessThan(total) {
		audit.LogWithDetail(ctx, audit.ActionTransferFailed, userID, req.Currency, "transfer rejected: insufficient funds")
		return nil, ErrInsufficientFunds
	}

	// The recipient may never have held this asset before.
	recipientWallet, err := s.repo.GetOrCreate(ctx, recipient.ID, req.Currency, newWalletAddress(req.Currency))
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		FromUserID:  userID,
		ToUserID:    recipient.ID,
		Asset:       req.Currency,
		Amount:      req.Amount,
		Fee:         fee,
		Type:        domain.TxSend,
		Status:      domain.TxPending,
		Description: fmt.Sprintf("transfer to %s", recipient.Username),
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to create transaction")
		return nil, err
	}

	if err := s.repo.Transfer(ctx, senderWallet.ID, recipientWallet.ID, total, req.Amount); err != nil {
		// Roll the record forward to failed, never delete it.
		if setErr := s.repo.SetTransactionStatus(ctx, tx.ID, domain.TxFailed, nil); setErr != nil {
			l.Error().Err(setErr).Str(log.FieldTransactionID, tx.ID).Msg("failed to mark transaction failed")
		}
		if errors.Is(err, repository.ErrInsufficientFunds) {
			audit.LogWithDetail(ctx, audit.ActionTransferFailed, userID, tx.ID, "transfer failed: insufficient funds")
			return nil, ErrInsufficientFunds
		}
		l.Error().Err(err).Str(log.FieldTransactionID, tx.ID).Msg("transfer failed")
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.SetTransactionStatus(ctx, tx.ID, domain.TxConfirmed, &now); err != nil {
		l.Error().Err(err).Str(log.FieldTransactionID, tx.ID).Msg("failed to confirm transaction")
		return nil, err
	}
	tx.Status = domain.TxConfirmed
	tx.CompletedAt = &now

	if err := s.producer.PublishTransaction(ctx, tx); err != nil {
		l.Warn().Err(err).Str(log.FieldTransactionID, tx.ID).Msg("failed to publish transaction event")
	}

	audit.LogWithDetail(ctx, audit.ActionTransfer, userID, tx.ID, "transfer confirmed")

	recipientResp := recipient.ToResponse()
	return &domain.TransactionResponse{
		Transaction:  *tx,
		Direction:    "sent",
		Counterparty: &recipientResp,
	}, nil
}

// Transactions returns a page of the caller's history, newest first.
func (s *walletServiceImpl) Transactions(ctx context.Context, userID string, page, limit int) ([]*domain.TransactionResponse, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	transactions, total, err := s.repo.ListTransactions(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*domain.TransactionResponse, len(transactions))
	for i, tx := range transactions {
		responses[i] = s.decorate(ctx, userID, tx)
	}
	return responses, total, nil
}

// GetTransaction returns one transaction the caller participated in.
func (s *walletServiceImpl) GetTransaction(ctx context.Context, userID, txID string) (*domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	if tx.FromUserID != userID && tx.ToUserID != userID {
		return nil, ErrTxNotFound
	}
	return s.decorate(ctx, userID, tx), nil
}

func (s *walletServiceImpl) decorate(ctx context.Context, userID string, tx *domain.Transaction) *domain.TransactionResponse {
	resp := &domain.TransactionResponse{Transaction: *tx}

	counterpartyID := tx.ToUserID
	resp.Direction = "sent"
	if tx.ToUserID == userID {
		resp.Direction = "received"
		counterpartyID = tx.FromUserID
	}

	if counterparty, err := s.userRepo.GetByID(ctx, counterpartyID); err == nil {
		r := counterparty.ToResponse()
		resp.Counterparty = &r
	}
	return resp
}

func pairKey(userID, asset string) string {
	return userID + ":" + asset
}
