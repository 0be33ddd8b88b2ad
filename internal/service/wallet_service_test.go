package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nebulo-im/nebulo/internal/domain"
)

func TestSend_Transfers_Amount_And_Charges_Fee(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	result, err := env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("10"),
		Currency: "USDT",
		Password: "password123",
	})
	req.NoError(err)
	req.Equal(domain.TxConfirmed, result.Status)
	req.Equal("sent", result.Direction)
	req.NotNil(result.CompletedAt)
	req.NotNil(result.Counterparty)
	req.Equal("bob", result.Counterparty.Username)
	req.True(result.Fee.Equal(decimal.RequireFromString("0.01")), "fee = %s", result.Fee)

	// Sender pays amount plus fee; recipient gets exactly the amount.
	req.True(env.balance(t, alice.User.ID, "USDT").Equal(decimal.RequireFromString("89.99")))
	req.True(env.balance(t, bob.User.ID, "USDT").Equal(decimal.RequireFromString("10")))
}

func TestSend_Resolves_Recipient_By_Email_And_ID(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "ETH", "10")

	_, err := env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob@example.com",
		Amount:   decimal.RequireFromString("1"),
		Currency: "ETH",
		Password: "password123",
	})
	req.NoError(err)

	_, err = env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       bob.User.ID,
		Amount:   decimal.RequireFromString("1"),
		Currency: "ETH",
		Password: "password123",
	})
	req.NoError(err)

	req.True(env.balance(t, bob.User.ID, "ETH").Equal(decimal.RequireFromString("2")))
}

func TestSend_Creates_Recipient_Wallet_Lazily(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	// Alice holds an asset outside the default set.
	_, err := env.walletRepo.GetOrCreate(ctx, alice.User.ID, "DOGE", "doge-addr")
	req.NoError(err)
	env.setBalance(t, alice.User.ID, "DOGE", "500")

	_, err = env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("100"),
		Currency: "DOGE",
		Password: "password123",
	})
	req.NoError(err)

	req.True(env.balance(t, bob.User.ID, "DOGE").Equal(decimal.RequireFromString("100")))
}

func TestSend_Rejects_Wrong_Password(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	_, err := env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("10"),
		Currency: "USDT",
		Password: "wrong",
	})
	req.ErrorIs(err, ErrWrongPassword)
	req.True(env.balance(t, alice.User.ID, "USDT").Equal(decimal.RequireFromString("100")))
}

func TestSend_Rejects_Self_Transfer(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.register(t, "alice")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	_, err := env.wallets.Send(context.Background(), alice.User.ID, &domain.SendRequest{
		To:       "alice",
		Amount:   decimal.RequireFromString("10"),
		Currency: "USDT",
		Password: "password123",
	})
	req.ErrorIs(err, ErrSelfTransfer)
}

func TestSend_Rejects_Non_Positive_Amount(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.register(t, "alice")
	env.register(t, "bob")

	for _, amount := range []string{"0", "-5"} {
		_, err := env.wallets.Send(context.Background(), alice.User.ID, &domain.SendRequest{
			To:       "bob",
			Amount:   decimal.RequireFromString(amount),
			Currency: "USDT",
			Password: "password123",
		})
		req.ErrorIs(err, ErrInvalidAmount)
	}
}

func TestSend_Rejects_Insufficient_Funds_Including_Fee(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.register(t, "alice")
	env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "USDT", "10")

	// 10 + 0.1% fee exceeds the balance of exactly 10.
	_, err := env.wallets.Send(context.Background(), alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("10"),
		Currency: "USDT",
		Password: "password123",
	})
	req.ErrorIs(err, ErrInsufficientFunds)
	req.True(env.balance(t, alice.User.ID, "USDT").Equal(decimal.RequireFromString("10")))
}

func TestSend_Rejects_Unknown_Recipient(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.register(t, "alice")

	_, err := env.wallets.Send(context.Background(), alice.User.ID, &domain.SendRequest{
		To:       "nobody",
		Amount:   decimal.RequireFromString("10"),
		Currency: "USDT",
		Password: "password123",
	})
	req.ErrorIs(err, ErrRecipientNotFound)
}

func TestSend_Concurrent_Transfers_Conserve_Balance(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	// Two transfers of 60 against a balance of 100: exactly one wins.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
				To:       "bob",
				Amount:   decimal.RequireFromString("60"),
				Currency: "USDT",
				Password: "password123",
			})
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			req.ErrorIs(err, ErrInsufficientFunds)
			failures++
		}
	}
	req.Equal(1, failures, "exactly one transfer must bounce")

	// 100 - 60 - 0.06 fee left with alice, 60 with bob.
	req.True(env.balance(t, alice.User.ID, "USDT").Equal(decimal.RequireFromString("39.94")))
	req.True(env.balance(t, bob.User.ID, "USDT").Equal(decimal.RequireFromString("60")))
}

func TestTransactions_Lists_Both_Directions(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	_, err := env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("25"),
		Currency: "USDT",
		Password: "password123",
	})
	req.NoError(err)

	sent, total, err := env.wallets.Transactions(ctx, alice.User.ID, 1, 20)
	req.NoError(err)
	req.EqualValues(1, total)
	req.Equal("sent", sent[0].Direction)
	req.Equal("bob", sent[0].Counterparty.Username)

	received, total, err := env.wallets.Transactions(ctx, bob.User.ID, 1, 20)
	req.NoError(err)
	req.EqualValues(1, total)
	req.Equal("received", received[0].Direction)
	req.Equal("alice", received[0].Counterparty.Username)
}

func TestGetTransaction_Hides_Foreign_Transactions(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.register(t, "alice")
	env.register(t, "bob")
	carol := env.register(t, "carol")
	env.setBalance(t, alice.User.ID, "USDT", "100")

	result, err := env.wallets.Send(ctx, alice.User.ID, &domain.SendRequest{
		To:       "bob",
		Amount:   decimal.RequireFromString("5"),
		Currency: "USDT",
		Password: "password123",
	})
	req.NoError(err)

	_, err = env.wallets.GetTransaction(ctx, alice.User.ID, result.ID)
	req.NoError(err)

	_, err = env.wallets.GetTransaction(ctx, carol.User.ID, result.ID)
	req.ErrorIs(err, ErrTxNotFound)
}

func TestBalances_Quotes_USD_Value(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	alice := env.register(t, "alice")
	env.setBalance(t, alice.User.ID, "USDT", "42")

	balances, err := env.wallets.Balances(context.Background(), alice.User.ID)
	req.NoError(err)
	req.Len(balances, len(domain.DefaultAssets))

	for _, b := range balances {
		if b.Asset == "USDT" {
			req.True(b.USDValue.Equal(decimal.RequireFromString("42")), "usd value = %s", b.USDValue)
		}
	}
}
