// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"gymbill/internal/core/id"
	"gymbill/internal/domain/auth"
	"gymbill/internal/infrastructure/storage/postgres"
	"gymbill/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	adminUserID, err := seedAdminUser(ctx, pool, log)
	if err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoData(ctx, pool, log, adminUserID); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func seedAdminUser(ctx context.Context, pool *postgres.Pool, log *logger.Logger) (id.ID, error) {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@gymbill.sa"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}

	// Idempotent: existing admin is left untouched.
	var existingID id.ID
	err := pool.Pool.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, adminEmail,
	).Scan(&existingID)
	if err == nil {
		log.Infow("admin user already exists", "email", adminEmail)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return id.Nil(), fmt.Errorf("check admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return id.Nil(), fmt.Errorf("hash password: %w", err)
	}

	adminID := id.New()
	now := time.Now()
	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name,
			is_active, is_admin, failed_login_attempts,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, true, true, 0, $6, $6, 1)`,
		adminID, adminEmail, string(hash), "System", "Administrator", now,
	)
	if err != nil {
		return id.Nil(), fmt.Errorf("insert admin user: %w", err)
	}

	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role, granted_by)
		VALUES ($1, $2, NULL)
		ON CONFLICT (user_id, role) DO NOTHING`,
		adminID, auth.RoleAdmin,
	)
	if err != nil {
		return id.Nil(), fmt.Errorf("grant admin role: %w", err)
	}

	log.Infow("admin user created", "email", adminEmail)
	return adminID, nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger, adminUserID id.ID) error {
	orgID, err := seedOrganization(ctx, pool, adminUserID)
	if err != nil {
		return err
	}

	planID, err := seedPlan(ctx, pool, orgID, adminUserID)
	if err != nil {
		return err
	}

	memberIDs, err := seedMembers(ctx, pool, orgID, adminUserID)
	if err != nil {
		return err
	}

	if err := seedSubscriptions(ctx, pool, orgID, planID, memberIDs, adminUserID); err != nil {
		return err
	}

	log.Infow("demo data seeded",
		"organization", orgID.String(),
		"plan", planID.String(),
		"members", len(memberIDs),
	)
	return nil
}

// demoOrgID is stable so re-runs hit the ON CONFLICT guards.
const demoOrgID = "7b52cf9e-0d5a-4b0a-9c3e-1f6f0a4f2d10"

func seedOrganization(ctx context.Context, pool *postgres.Pool, adminUserID id.ID) (id.ID, error) {
	orgID, err := id.Parse(demoOrgID)
	if err != nil {
		return id.Nil(), err
	}

	_, err = pool.Pool.Exec(ctx, `
		INSERT INTO user_organizations (user_id, organization_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, organization_id) DO NOTHING`,
		adminUserID, orgID.String(),
	)
	if err != nil {
		return id.Nil(), fmt.Errorf("grant org access: %w", err)
	}
	return orgID, nil
}

func seedPlan(ctx context.Context, pool *postgres.Pool, orgID, adminUserID id.ID) (id.ID, error) {
	planID := id.New()
	now := time.Now()

	// Fees are stored gross (VAT inclusive) alongside their rates.
	tag, err := pool.Pool.Exec(ctx, `
		INSERT INTO mem_plans (
			id, deletion_mark, version, created_at, updated_at, created_by, updated_by,
			organization_id, name_en, name_ar, duration_days, currency,
			membership_fee, membership_fee_tax_rate,
			admin_fee, admin_fee_tax_rate,
			join_fee, join_fee_tax_rate
		)
		SELECT $1, false, 1, $2, $2, $3, $3,
			   $4, 'Annual Gold', 'ذهبي سنوي', 365, 'SAR',
			   2300.00, 15, 115.00, 15, 230.00, 15
		WHERE NOT EXISTS (
			SELECT 1 FROM mem_plans WHERE organization_id = $4 AND name_en = 'Annual Gold'
		)`,
		planID, now, adminUserID.String(), orgID,
	)
	if err != nil {
		return id.Nil(), fmt.Errorf("insert plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = pool.Pool.QueryRow(ctx,
			`SELECT id FROM mem_plans WHERE organization_id = $1 AND name_en = 'Annual Gold'`,
			orgID,
		).Scan(&planID)
		if err != nil {
			return id.Nil(), fmt.Errorf("lookup existing plan: %w", err)
		}
	}
	return planID, nil
}

func seedMembers(ctx context.Context, pool *postgres.Pool, orgID, adminUserID id.ID) ([]id.ID, error) {
	members := []struct {
		nameEn string
		nameAr string
		email  string
		lang   string
	}{
		{"Fahad Al-Otaibi", "فهد العتيبي", "fahad@example.com", "ar"},
		{"Sara Al-Qahtani", "سارة القحطاني", "sara@example.com", "ar"},
		{"John Smith", "", "john@example.com", "en"},
	}

	now := time.Now()
	ids := make([]id.ID, 0, len(members))
	for _, m := range members {
		memberID := id.New()
		tag, err := pool.Pool.Exec(ctx, `
			INSERT INTO mem_members (
				id, deletion_mark, version, created_at, updated_at, created_by, updated_by,
				organization_id, name_en, name_ar, email, phone, preferred_lang
			)
			SELECT $1, false, 1, $2, $2, $3, $3, $4, $5, $6, $7, '', $8
			WHERE NOT EXISTS (
				SELECT 1 FROM mem_members WHERE organization_id = $4 AND email = $7
			)`,
			memberID, now, adminUserID.String(), orgID, m.nameEn, m.nameAr, m.email, m.lang,
		)
		if err != nil {
			return nil, fmt.Errorf("insert member %s: %w", m.email, err)
		}
		if tag.RowsAffected() == 0 {
			err = pool.Pool.QueryRow(ctx,
				`SELECT id FROM mem_members WHERE organization_id = $1 AND email = $2`,
				orgID, m.email,
			).Scan(&memberID)
			if err != nil {
				return nil, fmt.Errorf("lookup member %s: %w", m.email, err)
			}
		}
		ids = append(ids, memberID)
	}
	return ids, nil
}

func seedSubscriptions(ctx context.Context, pool *postgres.Pool, orgID, planID id.ID, memberIDs []id.ID, adminUserID id.ID) error {
	now := time.Now()
	start := now.Truncate(24 * time.Hour)
	end := start.AddDate(1, 0, 0)

	for _, memberID := range memberIDs {
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO mem_subscriptions (
				id, deletion_mark, version, created_at, updated_at, created_by, updated_by,
				organization_id, member_id, plan_id, status, start_date, end_date
			)
			SELECT $1, false, 1, $2, $2, $3, $3, $4, $5, $6, 'ACTIVE', $7, $8
			WHERE NOT EXISTS (
				SELECT 1 FROM mem_subscriptions WHERE member_id = $5 AND plan_id = $6
			)`,
			id.New(), now, adminUserID.String(), orgID, memberID, planID, start, end,
		)
		if err != nil {
			return fmt.Errorf("insert subscription for member %s: %w", memberID, err)
		}
	}
	return nil
}
