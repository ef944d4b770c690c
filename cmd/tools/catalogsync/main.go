package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/db"
)

// catalogsync loads the YAML menu and upserts it into menu_items.
// Exit code 0 = ok, 1 = catalog rejected, 2 = other error.
func main() {
	var (
		file    = flag.String("file", "", "menu YAML file; the embedded menu is used when empty")
		dryRun  = flag.Bool("dry-run", false, "validate and print the normalised menu without writing")
		strict  = flag.Bool("strict", false, "fail when an item name appears in more than one category")
		migrate = flag.Bool("migrate", false, "apply database migrations before syncing")
	)
	flag.Parse()
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "catalogsync").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cat, err := catalog.YAMLSource{Path: *file}.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogsync: %v\n", err)
		os.Exit(1)
	}
	if names := cat.AmbiguousNames(); len(names) > 0 {
		msg := "names shared across categories resolve only with a category prefix: " + strings.Join(names, ", ")
		if *strict {
			fmt.Fprintf(os.Stderr, "catalogsync: %s\n", msg)
			os.Exit(1)
		}
		logger.Warn().Strs("names", names).Msg("ambiguous bare names")
	}

	if *dryRun {
		out, err := catalog.EncodeYAML(cat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "catalogsync: %v\n", err)
			os.Exit(2)
		}
		_, _ = os.Stdout.Write(out)
		return
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "catalogsync: DATABASE_URL is not set")
		os.Exit(2)
	}
	if *migrate {
		if err := db.Migrate(dsn, logger); err != nil {
			fmt.Fprintf(os.Stderr, "catalogsync: %v\n", err)
			os.Exit(2)
		}
	}
	pool, err := db.Open(ctx, dsn, db.PoolOptions{ApplicationName: "catalogsync", MaxConns: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogsync: %v\n", err)
		os.Exit(2)
	}
	defer pool.Close()

	n, err := catalog.PostgresSource{Pool: pool, Currency: cat.Currency()}.Sync(ctx, cat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogsync: %v\n", err)
		os.Exit(2)
	}
	logger.Info().Int("items", n).Str("version", cat.Version()).Msg("menu synced")
}
