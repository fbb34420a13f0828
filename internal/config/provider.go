package config

import (
	"time"
)

// ProviderConfig holds the per-provider integration settings. Each adapter
// receives its own copy at construction; nothing reads provider secrets from
// globals.
type ProviderConfig struct {
	// Code identifies the provider in callback URLs, e.g. "classic".
	Code string
	// Secret is the shared HMAC secret for callback signatures.
	Secret string
	// UnitScale is the factor between the provider's wire amounts and the
	// wallet's canonical unit. 1 for providers that speak the wallet unit,
	// 1000 for providers whose amounts arrive in milliunits.
	UnitScale int64
}

// TokenConfig holds the token authority windows.
type TokenConfig struct {
	LaunchTTL  time.Duration
	SessionTTL time.Duration
}

// GatewayConfig holds wallet gateway settings.
type GatewayConfig struct {
	DefaultCurrency string
	// PendingTimeout bounds how long a ledger row may stay pending before the
	// sweeper fails it.
	PendingTimeout time.Duration
	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration
}

// LoadTokenConfig reads the token windows from the environment.
func LoadTokenConfig() TokenConfig {
	return TokenConfig{
		LaunchTTL:  GetDurationEnv("LAUNCH_TOKEN_TTL", 60*time.Second),
		SessionTTL: GetDurationEnv("SESSION_TOKEN_TTL", 40*time.Minute),
	}
}

// LoadGatewayConfig reads gateway settings from the environment.
func LoadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		DefaultCurrency: GetEnv("DEFAULT_CURRENCY", "USD"),
		PendingTimeout:  GetDurationEnv("PENDING_TX_TIMEOUT", 2*time.Minute),
		SweepInterval:   GetDurationEnv("PENDING_SWEEP_INTERVAL", 30*time.Second),
	}
}

// OpsConfig holds back-office API settings.
type OpsConfig struct {
	Username  string
	Password  string
	JWTSecret string
	TokenTTL  time.Duration
}

// LoadOpsConfig reads the ops API credentials from the environment.
func LoadOpsConfig() OpsConfig {
	return OpsConfig{
		Username:  GetEnv("OPS_USERNAME", "ops"),
		Password:  GetEnv("OPS_PASSWORD", ""),
		JWTSecret: GetEnv("JWT_SECRET", ""),
		TokenTTL:  GetDurationEnv("OPS_TOKEN_TTL", 12*time.Hour),
	}
}

// LoadProviderConfigs reads provider secrets from the environment. The secret
// for provider "classic" lives in PROVIDER_CLASSIC_SECRET and so on.
func LoadProviderConfigs() []ProviderConfig {
	return []ProviderConfig{
		{
			Code:      "classic",
			Secret:    GetEnv("PROVIDER_CLASSIC_SECRET", "classic-dev-secret"),
			UnitScale: 1,
		},
		{
			Code:      "millistar",
			Secret:    GetEnv("PROVIDER_MILLISTAR_SECRET", "millistar-dev-secret"),
			UnitScale: int64(GetIntEnv("PROVIDER_MILLISTAR_UNIT_SCALE", 1000)),
		},
	}
}
