package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"wallet-gate-api/internal/config"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// mockBalanceSpread spans all tier buckets so dev mode exercises every tier
const mockBalanceSpread = 4_000_000

// TokenOracle fetches a wallet's gating-token balance from the chain.
// Without a configured mint it returns a deterministic pseudo-balance
// derived from hashing the wallet address, flagged as mock so it can never
// be mistaken for an on-chain result.
type TokenOracle struct {
	client *rpc.Client
	config *config.RPCConfig
	mint   *solana.PublicKey
	scale  float64
}

// NewTokenOracle creates an oracle for the configured gating token
func NewTokenOracle(rpcCfg *config.RPCConfig, tokenCfg *config.TokenConfig) (*TokenOracle, error) {
	oracle := &TokenOracle{
		client: rpc.New(rpcCfg.Endpoint),
		config: rpcCfg,
		scale:  math.Pow10(tokenCfg.Decimals),
	}

	if tokenCfg.Mint != "" {
		mint, err := solana.PublicKeyFromBase58(tokenCfg.Mint)
		if err != nil {
			return nil, fmt.Errorf("invalid gating token mint: %w", err)
		}
		oracle.mint = &mint
	}

	return oracle, nil
}

// MockMode reports whether the oracle serves deterministic dev balances
func (o *TokenOracle) MockMode() bool {
	return o.mint == nil
}

// FetchBalance returns the wallet's total gating-token balance summed across
// every token account owned by the wallet, with retry logic. mock is true
// when no mint is configured.
func (o *TokenOracle) FetchBalance(ctx context.Context, address string) (balance float64, mock bool, err error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, false, fmt.Errorf("invalid wallet address: %w", err)
	}

	if o.mint == nil {
		return mockBalance(address), true, nil
	}

	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		total, err := o.sumTokenAccounts(attemptCtx, owner)
		cancel()

		if err == nil {
			return float64(total) / o.scale, false, nil
		}

		lastErr = err

		if attempt < o.config.MaxRetries {
			time.Sleep(o.config.RetryDelay * time.Duration(attempt+1))
		}
	}

	return 0, false, fmt.Errorf("failed to fetch token balance after %d attempts: %w", o.config.MaxRetries+1, lastErr)
}

// sumTokenAccounts adds up the raw amounts of every token account the owner
// holds for the gating mint. A wallet may hold the token split across
// multiple accounts.
func (o *TokenOracle) sumTokenAccounts(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := o.client.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{Mint: o.mint},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, fmt.Errorf("getTokenAccountsByOwner failed: %w", err)
	}

	var total uint64
	for _, acc := range out.Value {
		if acc == nil {
			continue
		}
		var tokenAccount token.Account
		if err := bin.NewBinDecoder(acc.Account.Data.GetBinary()).Decode(&tokenAccount); err != nil {
			return 0, fmt.Errorf("failed to decode token account %s: %w", acc.Pubkey, err)
		}
		total += tokenAccount.Amount
	}

	return total, nil
}

// IsHealthy checks if the RPC endpoint is responsive. Always healthy in
// mock mode since no endpoint is consulted.
func (o *TokenOracle) IsHealthy() error {
	if o.mint == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := o.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("RPC health check failed: %w", err)
	}

	return nil
}

// mockBalance maps a wallet address onto a stable pseudo-balance covering
// the full tier range. Non-cryptographic on purpose, dev aid only.
func mockBalance(address string) float64 {
	h := fnv.New32a()
	h.Write([]byte(address))
	return float64(h.Sum32() % mockBalanceSpread)
}

// ValidWalletAddress reports whether the address parses as a Solana public key
func ValidWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}
