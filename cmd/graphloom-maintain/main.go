package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	cfgPkg "github.com/graphloom/graphloom/pkg/config"
	"github.com/graphloom/graphloom/pkg/maintain"
	"github.com/graphloom/graphloom/pkg/store"
)

func main() {
	var (
		configPath string
		dbURL      string
		batchSize  int
		dryRun     bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&dbURL, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.IntVar(&batchSize, "batch-size", 0, "Relation updates per transaction (0 uses config)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report planned changes without applying them")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if dbURL != "" {
		config.Database.URL = dbURL
	}
	if batchSize != 0 {
		config.Maintenance.BatchSize = batchSize
	}
	if config.Database.URL == "" {
		log.Fatal("a database URL is required (-db-url or DATABASE_URL)")
	}

	if err := run(config, dryRun); err != nil {
		log.Fatal(err)
	}
}

func run(config *cfgPkg.Config, dryRun bool) error {
	graphStore, err := store.NewWithConfig(store.GraphStoreConfig{
		ConnString: config.Database.URL,
		BatchSize:  config.Database.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize graph store: %v", err)
	}
	defer graphStore.Close()

	maintainer, err := maintain.NewWithConfig(maintain.MaintainerConfig{
		Store:     graphStore,
		BatchSize: config.Maintenance.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize maintainer: %v", err)
	}

	if dryRun {
		color.Blue("Running graph consistency check (dry run)")
	} else {
		color.Blue("Running graph consistency maintenance")
	}

	report, err := maintainer.Run(context.Background(), dryRun)
	if err != nil {
		return err
	}

	verb := "applied"
	if report.DryRun {
		verb = "planned"
	}

	color.Green("\n✓ Maintenance %s\n", verb)
	fmt.Printf("  relations typed:    %d\n", report.RelationsTyped)
	for typ, n := range report.TypeAssignments {
		fmt.Printf("    %-20s %d\n", typ, n)
	}
	fmt.Printf("  relations deleted:  %d\n", report.RelationsDeleted)
	fmt.Printf("  entities pruned:    %d\n", report.EntitiesPruned)

	return nil
}
