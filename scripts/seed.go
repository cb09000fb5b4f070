//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/database"
	"github.com/visuluxe/visuluxe/internal/database/models"
	"github.com/visuluxe/visuluxe/pkg/config"
	"github.com/visuluxe/visuluxe/pkg/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create owner user
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := os.Getenv("OWNER_EMAIL")
	password := os.Getenv("OWNER_PASSWORD")
	name := os.Getenv("OWNER_NAME")

	if email == "" {
		email = "owner@example.com"
	}
	if password == "" {
		password = "Owner123!"
	}
	if name == "" {
		name = "Owner"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
	})

	if err != nil {
		if err == auth.ErrUserExists {
			fmt.Printf("Owner user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create owner user: %v", err)
	}

	// Register creates members; promote the seed account
	if err := db.Model(&models.User{}).
		Where("id = ?", resp.User.ID).
		Update("role", models.RoleOwner).Error; err != nil {
		log.Fatalf("failed to promote owner user: %v", err)
	}

	// Seed a couple of upstream providers without keys
	seedProviders := []models.Provider{
		{Name: "Stability AI", Slug: "stability", BaseURL: "https://api.stability.ai", ModelsPath: "/v1/models", IsActive: true},
		{Name: "Flux Pro", Slug: "flux-pro", BaseURL: "https://api.flux.example.com", ModelsPath: "/v1/models", IsActive: true},
	}
	for i := range seedProviders {
		var existing models.Provider
		if err := db.Where("slug = ?", seedProviders[i].Slug).First(&existing).Error; err == nil {
			continue
		}
		if err := db.Create(&seedProviders[i]).Error; err != nil {
			log.Fatalf("failed to seed provider %s: %v", seedProviders[i].Slug, err)
		}
	}

	fmt.Printf("Owner user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Token: %s\n", resp.Token)
}
