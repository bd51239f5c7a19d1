package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/config"
	"github.com/Simplici0/sowhours/internal/db"
	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/logging"
	"github.com/Simplici0/sowhours/internal/migrations"
	"github.com/Simplici0/sowhours/internal/seed"
)

var (
	cfg    config.Config
	logger *zap.Logger

	calcProducts []string
	calcUnits    map[string]string
	calcSegment  string
	calcApproved bool
)

func init() {
	// Hours and money go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var rootCmd = &cobra.Command{
	Use:           "sowhours",
	Short:         "SOW role-hours allocation and approval engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		var err error
		logger, err = logging.New(cfg.LogLevel, cfg.IsDev())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		for _, w := range cfg.Warnings {
			logger.Warn(w)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply or inspect database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the rule book and approver list into the database",
	RunE:  runSeed,
}

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute project hours and the role distribution for a selection",
	RunE:  runCalc,
}

func init() {
	calcCmd.Flags().StringSliceVar(&calcProducts, "product", nil, "Selected product id (repeatable)")
	calcCmd.Flags().StringToStringVar(&calcUnits, "units", nil, "Unit counts, e.g. orchestration_units=120")
	calcCmd.Flags().StringVar(&calcSegment, "segment", "", "Account segment code (EC, MM, ENT, STRAT)")
	calcCmd.Flags().BoolVar(&calcApproved, "removal-approved", false, "Treat PM hours removal as approved")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, calcCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		book, err := catalog.LoadFile(cfg.RulesPath)
		if err != nil {
			return fmt.Errorf("failed to load rule book: %w", err)
		}
		stats, err := seed.Run(cmd.Context(), database, seed.Config{Book: book, ApproverEmails: cfg.ApproverEmails})
		if err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
		logger.Info("seeded database", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))
	}

	srv, err := newServer(cmd.Context(), database, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}
	switch action {
	case "up":
		err = migrations.Up(database, cfg.MigrationsDir)
	case "down":
		err = migrations.Down(database, cfg.MigrationsDir)
	}
	if err != nil {
		return err
	}

	v, err := migrations.Version(cmd.Context(), database)
	if err != nil {
		return err
	}
	logger.Info("schema version", zap.Int64("version", v), zap.String("action", action))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	book, err := catalog.LoadFile(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule book: %w", err)
	}
	stats, err := seed.Run(cmd.Context(), database, seed.Config{Book: book, ApproverEmails: cfg.ApproverEmails})
	if err != nil {
		return err
	}
	logger.Info("seeded database", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))
	return nil
}

func runCalc(cmd *cobra.Command, args []string) error {
	book, err := catalog.LoadFile(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule book: %w", err)
	}

	sel, err := selectionFromFlags(calcProducts, calcUnits, calcSegment)
	if err != nil {
		return err
	}
	est := hours.NewEstimate(hours.Calculate(sel, book), calcApproved)
	if missing := est.Hours.Unresolved(); len(missing) > 0 {
		logger.Warn("selected products have no hours rule", zap.Strings("product_ids", missing))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(est)
}

func selectionFromFlags(products []string, units map[string]string, segment string) (hours.Selection, error) {
	sel := hours.Selection{
		ProductIDs:     products,
		Units:          make(map[catalog.UnitField]decimal.Decimal, len(units)),
		AccountSegment: catalog.NormalizeSegment(segment),
	}
	for field, raw := range units {
		n, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return hours.Selection{}, fmt.Errorf("units %s: %q is not a number", field, raw)
		}
		sel.Units[catalog.UnitField(field)] = n
	}
	return sel, nil
}
