package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"familypoints/internal/config"
	"familypoints/internal/database"
	"familypoints/internal/logging"
	"familypoints/internal/repository"
	"familypoints/internal/service"

	log "github.com/sirupsen/logrus"
)

func main() {
	reconcileCmd := flag.NewFlagSet("reconcile", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	exportFamily := exportCmd.String("family", "", "Family ID to export (required)")
	exportOutput := exportCmd.String("output", "", "Output file path (default: family_<id>_YYYYMMDD_HHMMSS.json)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	auditService := service.NewAuditService(
		repository.NewFamilyRepository(db),
		repository.NewUserRepository(db),
		repository.NewTaskRepository(db),
		repository.NewRewardRepository(db),
		repository.NewClaimRepository(db),
		repository.NewPointsRepository(db),
	)

	ctx := context.Background()

	switch os.Args[1] {
	case "reconcile":
		reconcileCmd.Parse(os.Args[2:])
		os.Exit(handleReconcile(ctx, auditService))

	case "export":
		exportCmd.Parse(os.Args[2:])
		if *exportFamily == "" {
			fmt.Println("Error: -family flag is required")
			exportCmd.PrintDefaults()
			os.Exit(1)
		}
		handleExport(ctx, auditService, *exportFamily, *exportOutput)

	default:
		printUsage()
		os.Exit(1)
	}
}

// handleReconcile prints every mismatched balance and returns the process exit code
func handleReconcile(ctx context.Context, auditService *service.AuditService) int {
	mismatches, err := auditService.Reconcile(ctx)
	if err != nil {
		log.WithError(err).Error("Reconciliation failed")
		return 2
	}

	if len(mismatches) == 0 {
		fmt.Println("All balances match the point journal")
		return 0
	}

	fmt.Printf("%d balance(s) do not match the point journal:\n", len(mismatches))
	for _, m := range mismatches {
		fmt.Printf("  %s (%s): balance %d, journal %d\n", m.UserID, m.Email, m.Balance, m.JournalTotal)
	}
	return 1
}

func handleExport(ctx context.Context, auditService *service.AuditService, familyID, outputPath string) {
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("family_%s_%s.json", familyID, timestamp)
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.WithError(err).Fatal("Failed to create output directory")
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to create output file")
	}

	log.WithFields(log.Fields{"family_id": familyID, "output": outputPath}).Info("Exporting family")
	if err := auditService.ExportFamily(ctx, familyID, file); err != nil {
		file.Close()
		os.Remove(outputPath)
		log.WithError(err).Fatal("Export failed")
	}
	if err := file.Close(); err != nil {
		log.WithError(err).Fatal("Failed to write output file")
	}

	fileInfo, err := os.Stat(outputPath)
	if err == nil {
		log.Infof("Export complete! File size: %.2f KB", float64(fileInfo.Size())/1024)
	}
}

func printUsage() {
	fmt.Println("Family points ledger tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ledger reconcile")
	fmt.Println("  ledger export -family <id> [-output <file>]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  reconcile   Compare every balance with its point journal; exits 1 on mismatch")
	fmt.Println("  export      Write a JSON snapshot of one family")
}
