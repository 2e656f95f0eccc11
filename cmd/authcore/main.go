// Copyright 2026 The AuthCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/motoservis/authcore/internal/audit"
	"github.com/motoservis/authcore/internal/authz"
	"github.com/motoservis/authcore/internal/config"
	"github.com/motoservis/authcore/internal/identity"
	"github.com/motoservis/authcore/internal/observability/logger"
	"github.com/motoservis/authcore/internal/observability/metrics"
	"github.com/motoservis/authcore/internal/observability/tracing"
	"github.com/motoservis/authcore/internal/store/postgres"
)

const usage = `Usage: authcore <command> [args]

Commands:
  migrate               apply the database schema
  bootstrap             create the initial administrator from the environment
  import <file>         import users from a semicolon-delimited file
  export [file]         export users (stdout when no file is given)
  audit-export [file]   export the audit log (stdout when no file is given)
  audit-prune           delete audit events older than AUDIT_MAX_AGE
  unlock <username>     clear a user's lockout state
`

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer func() {
		if tracer != nil {
			_ = tracer.Shutdown(ctx)
		}
	}()

	// Initialize meter
	meter := metrics.New(metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if _, _, err := meter.LoginCounters(); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "migrate":
		fmt.Println("Applying initial schema...")
		if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
			return err
		}
		fmt.Println("Migration successful.")
		return nil
	case "bootstrap":
		return runBootstrap(ctx, cfg, db)
	case "import":
		if len(args) < 1 {
			return fmt.Errorf("import requires a file argument")
		}
		return runImport(ctx, cfg, db, args[0])
	case "export":
		return runExport(ctx, cfg, db, args)
	case "audit-export":
		return runAuditExport(ctx, db, args)
	case "audit-prune":
		return runAuditPrune(ctx, cfg, db)
	case "unlock":
		if len(args) < 1 {
			return fmt.Errorf("unlock requires a username argument")
		}
		return runUnlock(ctx, db, args[0])
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func newHasher(cfg *config.Config) *identity.PasswordHasher {
	return identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
}

func runBootstrap(ctx context.Context, cfg *config.Config, db *postgres.DB) error {
	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	permRepo := postgres.NewPermissionRepository(db)
	auditor := audit.NewService(postgres.NewAuditRepository(db))

	// Catalog the permission set before the first admin arrives.
	resolver := authz.NewResolver(userRepo, roleRepo, permRepo)
	authzAdmin := authz.NewAdminService(resolver, roleRepo, permRepo, auditor).
		WithPolicyStore(postgres.NewSettingsRepository(db))
	if err := authzAdmin.Seed(ctx); err != nil {
		return err
	}

	bootstrap := identity.NewBootstrapService(userRepo, newHasher(cfg), auditor)
	if err := bootstrap.Bootstrap(ctx); err != nil {
		return err
	}

	fmt.Println("Bootstrap complete.")
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, db *postgres.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	auditor := audit.NewService(postgres.NewAuditRepository(db))
	transfer := identity.NewTransfer(userRepo, newHasher(cfg), auditor, roleRepo)

	result, err := transfer.Import(ctx, f, identity.Actor{Username: "cli", Source: "cli"})
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d users, skipped %d.\n", result.Created, result.Skipped)
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, db *postgres.DB, args []string) error {
	sink := os.Stdout
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		sink = f
	}

	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	auditor := audit.NewService(postgres.NewAuditRepository(db))
	transfer := identity.NewTransfer(userRepo, newHasher(cfg), auditor, roleRepo)

	return transfer.Export(ctx, identity.ListFilter{}, sink)
}

func runAuditExport(ctx context.Context, db *postgres.DB, args []string) error {
	sink := os.Stdout
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		sink = f
	}

	auditor := audit.NewService(postgres.NewAuditRepository(db))
	return auditor.Export(ctx, audit.Filter{}, sink)
}

func runAuditPrune(ctx context.Context, cfg *config.Config, db *postgres.DB) error {
	auditor := audit.NewService(postgres.NewAuditRepository(db))
	cutoff := time.Now().Add(-cfg.Retention.AuditMaxAge)
	n, err := auditor.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d audit events older than %s.\n", n, cutoff.Format("2006-01-02"))
	return nil
}

func runUnlock(ctx context.Context, db *postgres.DB, username string) error {
	userRepo := postgres.NewUserRepository(db)
	lockouts := identity.NewLockoutManager(postgres.NewLockoutRepository(db))
	auditor := audit.NewService(postgres.NewAuditRepository(db))

	user, err := userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := lockouts.Unlock(ctx, user.ID); err != nil {
		return err
	}
	_, _ = auditor.Emit(ctx, audit.Record{
		Kind: audit.KindUserEdited, Username: "cli",
		Details: "unlocked user " + user.Username, Source: "cli",
	})
	fmt.Printf("Unlocked %s.\n", username)
	return nil
}
