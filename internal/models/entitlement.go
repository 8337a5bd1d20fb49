package models

import "time"

// VerifyTokenRequest asks for the gating-token balance and tier of a wallet
type VerifyTokenRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// VerifyTokenResponse carries the balance-derived tier for a wallet.
// Mock is true whenever the balance came from the deterministic dev-mode
// oracle rather than the chain.
type VerifyTokenResponse struct {
	Success    bool    `json:"success"`
	Balance    float64 `json:"balance"`
	Tier       string  `json:"tier"`
	DailyLimit int     `json:"dailyLimit"`
	Unlimited  bool    `json:"unlimited"`
	Cached     bool    `json:"cached"`
	Mock       bool    `json:"mock"`
}

// RateLimitRequest checks a wallet against one action's fixed window
type RateLimitRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Action        string `json:"action" binding:"required"`
}

// RateLimitResponse reports the surviving request budget for the window
type RateLimitResponse struct {
	Success   bool      `json:"success"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// EntitlementRequest asks whether a wallet may perform a gated action now
type EntitlementRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Action        string `json:"action" binding:"required"`
}

// EntitlementResponse is the full evaluate result. Tier fields are always
// populated for display even when FreeAccess bypasses enforcement.
type EntitlementResponse struct {
	Success    bool    `json:"success"`
	Allowed    bool    `json:"allowed"`
	Reason     string  `json:"reason,omitempty"`
	Tier       string  `json:"tier"`
	Balance    float64 `json:"balance"`
	DailyLimit int     `json:"dailyLimit"`
	Unlimited  bool    `json:"unlimited"`
	Used       int     `json:"used"`
	Remaining  int     `json:"remaining"`
	FreeAccess bool    `json:"freeAccess"`
	Cached     bool    `json:"cached"`
	Mock       bool    `json:"mock"`
}

// UsageRequest charges one gated action against a wallet's daily quota
type UsageRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// UsageResponse returns the new count for today after an increment
type UsageResponse struct {
	Success bool `json:"success"`
	Used    int  `json:"used"`
}

// UsageRecord is a wallet's consumed-action counter for one calendar day.
// A record whose Date is not today is stale and reads as count 0.
type UsageRecord struct {
	Wallet    string    `bson:"wallet" json:"wallet"`
	Count     int       `bson:"count" json:"count"`
	Date      string    `bson:"date" json:"date"` // ISO date, UTC
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AccessWindowResponse describes the global free-access window
type AccessWindowResponse struct {
	Open             bool       `json:"open"`
	Permanent        bool       `json:"permanent"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	LaunchTime       *time.Time `json:"launch_time,omitempty"`
}
