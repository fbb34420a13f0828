// Package routes defines the API routing configuration.
// It wires repositories, services and handlers together and groups routes
// by audience: provider callbacks, the game-client API and the ops API.
package routes

import (
	"betcore/internal/config"
	"betcore/internal/handlers"
	"betcore/internal/middleware"
	"betcore/internal/providers"
	"betcore/internal/providers/classic"
	"betcore/internal/providers/millistar"
	"betcore/internal/repositories"
	"betcore/internal/services/gateway"
	"betcore/internal/services/token"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes. It returns the pending
// transaction sweeper so main can run it on its own goroutine.
func SetupRoutes(app *fiber.App, db *gorm.DB, store token.Store) *gateway.Sweeper {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)

	// Initialize services
	tokenService := token.NewService(store, config.LoadTokenConfig(), token.RealClock())
	gatewayCfg := config.LoadGatewayConfig()
	gatewayService := gateway.NewService(
		userRepo,
		walletRepo,
		ledgerRepo,
		tokenService,
		gatewayCfg,
		&gateway.NoopMetricsCollector{},
	)

	// Build the provider adapter registry from per-provider config.
	var adapters []providers.Adapter
	for _, cfg := range config.LoadProviderConfigs() {
		switch cfg.Code {
		case "classic":
			adapters = append(adapters, classic.New(cfg))
		case "millistar":
			adapters = append(adapters, millistar.New(cfg))
		}
	}
	registry := providers.NewRegistry(adapters...)

	// Initialize handlers
	callbackHandler := handlers.NewCallbackHandler(registry, gatewayService)
	launchHandler := handlers.NewLaunchHandler(userRepo, tokenService)
	sessionHandler := handlers.NewSessionHandler(gatewayService)

	opsCfg := config.LoadOpsConfig()
	opsHandler := handlers.NewOpsHandler(userRepo, ledgerRepo, opsCfg)
	opsAuth := middleware.NewOperatorAuth(opsCfg.JWTSecret)

	// Provider callbacks. Authentication happens inside the handler via
	// HMAC signatures and session tokens, not via middleware.
	app.Post("/callback/:provider/:action", callbackHandler.Handle)

	// Game-client API
	api := app.Group("/api")
	api.Post("/launch", launchHandler.Launch)
	api.Post("/session/refresh", sessionHandler.Refresh)

	// Ops API behind operator JWT
	ops := api.Group("/ops")
	ops.Post("/login", opsHandler.Login)
	protected := ops.Use(opsAuth.Handler)
	protected.Get("/transactions/:providerTxId", opsHandler.GetTransaction)
	protected.Post("/users/:userId/block", opsHandler.BlockUser)
	protected.Post("/users/:userId/unblock", opsHandler.UnblockUser)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return gateway.NewSweeper(ledgerRepo, gatewayCfg.PendingTimeout, gatewayCfg.SweepInterval)
}
