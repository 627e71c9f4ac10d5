package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/audit"
	"github.com/nerrad567/beacon-notify-core/internal/auth"
	"github.com/nerrad567/beacon-notify-core/internal/beacon"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/database"
)

// runMigrate applies all pending migrations, rolls back the latest one,
// or prints the migration status.
func runMigrate(ctx context.Context, out io.Writer, configPath string, down, status bool) error {
	if down && status {
		return fmt.Errorf("--down and --status are mutually exclusive")
	}

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	switch {
	case status:
		applied, pending, statusErr := db.GetMigrationStatus(ctx)
		if statusErr != nil {
			return statusErr
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT")
		for _, m := range applied {
			fmt.Fprintf(tw, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
		}
		for _, v := range pending {
			fmt.Fprintf(tw, "%s\tpending\t-\n", v)
		}
		return tw.Flush()

	case down:
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		log.Info("rolled back latest migration")
		return nil

	default:
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")
		return nil
	}
}

// runToken prints a signed access token for an active user.
func runToken(ctx context.Context, out io.Writer, configPath, userID string, ttl int) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	user, err := auth.NewUserRepository(db.DB).GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if !user.IsActive {
		return fmt.Errorf("user %s: %w", userID, auth.ErrUserInactive)
	}

	if ttl <= 0 {
		ttl = cfg.Security.JWT.AccessTokenTTL
	}
	token, err := auth.GenerateAccessToken(user, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// runUserCreate registers an active user and prints its ID.
func runUserCreate(ctx context.Context, out io.Writer, configPath, username, displayName string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	if displayName == "" {
		displayName = username
	}
	user := &auth.User{Username: username, DisplayName: displayName, IsActive: true}
	if err := auth.NewUserRepository(db.DB).Create(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	fmt.Fprintln(out, user.ID)
	return nil
}

// runUserSetActive enables or disables a user.
func runUserSetActive(ctx context.Context, configPath, userID string, active bool) error {
	if userID == "" {
		return fmt.Errorf("user ID argument is required")
	}

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	if err := auth.NewUserRepository(db.DB).SetActive(ctx, userID, active); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	log.Info("user updated", "user_id", userID, "active", active)
	return nil
}

// runBeaconCreate registers a beacon and prints its ID.
func runBeaconCreate(ctx context.Context, out io.Writer, configPath, name, uuid string, active bool) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	b := &beacon.Beacon{Name: name, UUID: uuid, IsActive: active}
	if err := beacon.NewSQLiteRepository(db.DB).CreateBeacon(ctx, b); err != nil {
		return fmt.Errorf("creating beacon: %w", err)
	}
	fmt.Fprintln(out, b.ID)
	return nil
}

// runBeaconEvents prints a user's most recent proximity events.
func runBeaconEvents(ctx context.Context, out io.Writer, configPath, userID string, limit int) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	events, err := beacon.NewSQLiteRepository(db.DB).ListProximityEvents(ctx, userID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBEACON\tDISTANCE\tMOTION\tTIMESTAMP")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%t\t%s\n",
			ev.ID, ev.BeaconID, ev.Distance, ev.MotionDetected, ev.Timestamp.Format(time.RFC3339))
	}
	return tw.Flush()
}

// runAuditList prints audit entries, newest first.
func runAuditList(ctx context.Context, out io.Writer, configPath string, filter audit.Filter) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // CLI exits right after

	entries, err := audit.NewSQLiteRepository(db.DB).List(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tENTITY\tUSER\tDETAILS")
	for _, e := range entries {
		details := "-"
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("encoding details of %s: %w", e.ID, err)
			}
			details = string(b)
		}
		user := e.UserID
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Action, e.EntityType, e.EntityID, user, details)
	}
	return tw.Flush()
}
