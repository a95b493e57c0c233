// Package main runs the overdue invoice sweep once and exits.
// Intended to be invoked by an external scheduler (cron, Kubernetes CronJob).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gymbill/internal/core/id"
	"gymbill/internal/domain/billing/invoice"
	"gymbill/internal/infrastructure/storage/postgres"
	"gymbill/internal/infrastructure/storage/postgres/billing_repo"
	"gymbill/internal/infrastructure/storage/postgres/membership_repo"
	"gymbill/pkg/logger"
	"gymbill/pkg/numerator"
)

func main() {
	var (
		orgFlag  = flag.String("org", "", "limit the sweep to one organization (UUID); empty sweeps all")
		asOfFlag = flag.String("as-of", "", "sweep reference date (YYYY-MM-DD); empty means today")
	)
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	orgID := id.Nil()
	if *orgFlag != "" {
		parsed, err := id.Parse(*orgFlag)
		if err != nil {
			log.Fatalw("invalid -org value", "value", *orgFlag, "error", err)
		}
		orgID = parsed
	}

	asOf := time.Now()
	if *asOfFlag != "" {
		parsed, err := time.Parse("2006-01-02", *asOfFlag)
		if err != nil {
			log.Fatalw("invalid -as-of value", "value", *asOfFlag, "error", err)
		}
		asOf = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	numeratorService := numerator.NewWithProvider(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	})

	service := invoice.NewService(invoice.ServiceConfig{
		Repo:          billing_repo.NewInvoiceRepo(txManager),
		Ledger:        billing_repo.NewLedgerRepo(txManager),
		Members:       membership_repo.NewMemberRepo(txManager),
		Plans:         membership_repo.NewPlanRepo(txManager),
		Subscriptions: membership_repo.NewSubscriptionRepo(txManager),
		Numerator:     numeratorService,
		TxManager:     txManager,
		Audit:         auditService,
	})

	marked, err := service.MarkOverdueInvoices(ctx, orgID, asOf)
	if err != nil {
		log.Fatalw("overdue sweep failed", "error", err)
	}

	log.Infow("overdue sweep finished",
		"marked", marked,
		"as_of", asOf.Format("2006-01-02"),
		"organization", *orgFlag,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
