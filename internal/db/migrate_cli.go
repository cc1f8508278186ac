package db

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	// Open without running schema initialization; migrations manage the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		version, dirty, _ := database.MigrateVersion()
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back successfully")
		version, dirty, _ := database.MigrateVersion()
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		latest, err := LatestMigrationVersion()
		if err != nil {
			log.Fatalf("Failed to get latest migration version: %v", err)
		}
		fmt.Println("=== Migration Status ===")
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest available: %d\n", latest)
		fmt.Printf("Dirty: %v\n", dirty)
		if dirty {
			fmt.Println("\nWARNING: database is in a dirty state. A migration failed")
			fmt.Println("mid-execution; inspect the database, then run: migrate force <version>")
		} else if version < latest {
			fmt.Printf("\nDatabase is %d version(s) behind. Run 'migrate up' to update.\n", latest-version)
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: cell-features migrate force <version_number>")
		}
		var forceVersion int
		if _, err := fmt.Sscanf(args[1], "%d", &forceVersion); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(forceVersion); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", forceVersion)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: cell-features migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  cell-features migrate up")
	fmt.Println("  cell-features migrate status")
	fmt.Println("  cell-features migrate force 2")
}
