package main

import (
	"context"
	"flag"
	"fmt"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/identity"
	"ms-booking/internal/logger"
	"ms-booking/internal/storage"
	"strings"
	"time"
)

// seedVendors are the demo vendors created by -seed, as legacy code, profile id and name.
var seedVendors = [][3]string{
	{"V-0042", "prof-42", "Lumen Studio"},
	{"V-0077", "prof-77", "Bloom & Vine Florals"},
	{"V-0101", "", "Harana Strings"},
}

func main() {
	action := flag.String("action", "up", "migration action: up, down, to or version")
	target := flag.Uint("version", 0, "target version for -action=to")
	seed := flag.Bool("seed", false, "register demo vendors after migrating")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	if cfg.Database.DSN == "" {
		log.Fatal("MIGRATE", "POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := storage.Open(cfg.Database.DSN, 2, 2)
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	runner := migrations.NewRunner(db.Bun, log)
	switch strings.ToLower(*action) {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*target)
	case "version":
		var v uint
		if v, err = runner.Version(); err == nil {
			log.Info("MIGRATE", fmt.Sprintf("Schema version: %d", v))
		}
	default:
		err = fmt.Errorf("unknown action %q", *action)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("Migration action %q completed", *action))

	// the migrator closes the shared pool, so seeding uses a fresh one
	runner.Close()
	if *seed {
		if err := seedDemo(ctx, cfg.Database.DSN, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}
}

func seedDemo(ctx context.Context, dsn string, log *logger.Logger) error {
	db, err := storage.Open(dsn, 2, 2)
	if err != nil {
		return err
	}
	defer db.Close()

	resolver := identity.NewResolver(db, nil, log)
	for _, v := range seedVendors {
		if _, err := resolver.Canonicalize(ctx, v[0]); err == nil {
			log.Info("SEED", fmt.Sprintf("Vendor %s already registered", v[0]))
			continue
		}
		vendor, err := resolver.Register(ctx, v[0], v[1], v[2])
		if err != nil {
			return fmt.Errorf("register %s: %w", v[0], err)
		}
		log.Info("SEED", fmt.Sprintf("Registered %s as %s", v[2], vendor.ID))
	}
	return nil
}
