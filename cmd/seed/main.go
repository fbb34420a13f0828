// Command seed creates a player with a funded wallet for local development
// and integration testing.
package main

import (
	"log"
	"os"

	"betcore/internal/config"
	"betcore/internal/models"
	"betcore/internal/repositories"

	"github.com/shopspring/decimal"
)

func main() {
	config.LoadEnv()

	nickname := os.Getenv("SEED_NICKNAME")
	if nickname == "" {
		log.Fatal("SEED_NICKNAME must be set in environment")
	}
	balance, err := decimal.NewFromString(config.GetEnv("SEED_BALANCE", "1000.00"))
	if err != nil || balance.IsNegative() {
		log.Fatal("SEED_BALANCE must be a non-negative decimal amount")
	}

	db, err := repositories.InitDB(repositories.DefaultDBConfig())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Failed to close database connection: %v", err)
			}
		}
	}()

	var existing models.User
	if err := db.Where("nickname = ?", nickname).First(&existing).Error; err == nil {
		log.Printf("Player %q already exists (id=%d)", nickname, existing.ID)
		return
	}

	player := models.User{
		Nickname: nickname,
		Status:   models.UserStatusActive,
		Wallet: &models.Wallet{
			Balance:  balance,
			Currency: config.GetEnv("DEFAULT_CURRENCY", "USD"),
		},
	}
	if err := db.Create(&player).Error; err != nil {
		log.Fatal("Failed to create player:", err)
	}

	log.Printf("Player %q created (id=%d, balance=%s)", nickname, player.ID, balance.StringFixed(2))
}
