package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/iwvelando/mortgage-calculator/internal/config"
	"github.com/iwvelando/mortgage-calculator/internal/server"
	"github.com/iwvelando/mortgage-calculator/internal/snapshot"
	"github.com/iwvelando/mortgage-calculator/pkg/bulk"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"github.com/iwvelando/mortgage-calculator/pkg/output"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once the root has loaded the
// configuration.
type app struct {
	configPath   string
	logLevel     string
	outputFormat string

	conf   *config.Configuration
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mortgage-calculator",
		Short:         "Monthly mortgage payments, first-year amortization and bulk spreadsheets",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate("mortgage-calculator {{.Version}}\n")

	root.PersistentFlags().StringVar(&a.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, csv, json")

	root.AddCommand(
		a.calculateCommand(),
		a.bulkCommand(),
		a.serveCommand(),
		a.snapshotCommand(),
	)
	return root
}

// setup loads .env, the configuration file and the logger. A missing
// default config file falls back to built-in defaults; a missing file named
// explicitly with --config is an error.
func (a *app) setup(cmd *cobra.Command) error {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	conf, err := a.loadConfiguration(cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}

	if a.outputFormat != "" {
		if err := validation.ValidateOutputFormat(a.outputFormat); err != nil {
			return err
		}
		conf.Output.Format = a.outputFormat
	}
	if conf.Output.Format == "" {
		conf.Output.Format = constants.OutputFormatPretty
	}

	logger, err := initializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.conf = conf
	a.logger = logger
	return nil
}

func (a *app) loadConfiguration(explicit bool) (*config.Configuration, error) {
	if !explicit {
		if _, err := os.Stat(a.configPath); errors.Is(err, fs.ErrNotExist) {
			return config.Default()
		}
	}

	conf, err := config.LoadConfiguration(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration at %s: %w", a.configPath, err)
	}
	return conf, nil
}

func (a *app) openStore(ctx context.Context) (snapshot.Store, func(), error) {
	store, err := a.conf.NewStore(ctx, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	closer := func() {}
	if c, ok := store.(io.Closer); ok {
		closer = func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("failed to close snapshot store",
					zap.String("op", "main.openStore"),
					zap.Error(err),
				)
			}
		}
	}
	return store, closer, nil
}

func (a *app) calculateCommand() *cobra.Command {
	var (
		amount   float64
		rate     float64
		years    int
		loanType string
		months   int
		persist  bool
	)

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute the monthly payment, totals and first-year schedule",
		Long: "Compute the monthly payment, totals and first-year schedule for one loan.\n" +
			"Flags that are not given fall back to the stored inputs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			stored, err := snapshot.LoadOrEmpty(ctx, a.logger, store)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			values := stored.Merge(snapshot.Snapshot{Type: constants.TypeRepayment})
			if flags.Changed("amount") {
				values.Amount = strconv.FormatFloat(amount, 'f', -1, 64)
			}
			if flags.Changed("rate") {
				values.Rate = strconv.FormatFloat(rate, 'f', -1, 64)
			}
			if flags.Changed("years") {
				values.Years = strconv.Itoa(years)
			}
			if flags.Changed("type") {
				values.Type = loanType
			}

			in, err := inputFromValues(values)
			if err != nil {
				return err
			}

			enabled := a.conf.Persistence.Enabled
			if flags.Changed("persist") {
				enabled = persist
			}
			if err := snapshot.Persist(ctx, store, enabled, snapshot.FromInput(in)); err != nil {
				a.logger.Warn("failed to update snapshot",
					zap.String("op", "main.calculate"),
					zap.Error(err),
				)
			}

			result, err := loans.NewCalculator(a.logger).CalculateMonths(in, months)
			if err != nil {
				return describeInputError(err)
			}

			return output.Write(cmd.OutOrStdout(), a.conf.Output.Format, a.conf.Money(), result)
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "loan amount")
	cmd.Flags().Float64Var(&rate, "rate", 0, "annual interest rate in percent")
	cmd.Flags().IntVar(&years, "years", 0, "term in years")
	cmd.Flags().StringVar(&loanType, "type", constants.TypeRepayment, "repayment or interest-only")
	cmd.Flags().IntVar(&months, "months", constants.FirstYearMonths, "schedule months to show (0 for the full term)")
	cmd.Flags().BoolVar(&persist, "persist", false, "remember these inputs (defaults to persistence.enabled)")
	return cmd
}

// inputFromValues parses stored or flag values into a validated LoanInput.
func inputFromValues(values snapshot.Snapshot) (loans.LoanInput, error) {
	rec := bulk.Record{Amount: values.Amount, Rate: values.Rate, Years: values.Years, Type: values.Type}
	in, err := rec.Input()
	if err != nil {
		return loans.LoanInput{}, describeInputError(err)
	}
	if fields := validation.ValidateLoanFields(in.Amount, in.AnnualRate, in.Years); len(fields) > 0 {
		return loans.LoanInput{}, fmt.Errorf("invalid loan input: %w", fields)
	}
	return in, nil
}

func describeInputError(err error) error {
	fields := loans.FieldErrors(err)
	if len(fields) == 0 {
		return err
	}
	return fmt.Errorf("invalid loan input: %w", fields)
}

func (a *app) bulkCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "bulk FILE",
		Short: "Compute every loan listed in an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open workbook: %w", err)
			}
			defer func() {
				_ = file.Close()
			}()

			records, err := bulk.ReadWorkbook(file)
			if err != nil {
				return err
			}

			report := bulk.NewProcessor(a.logger, nil).Process(filepath.Base(path), records)

			if outPath != "" {
				if err := writeWorkbookFile(outPath, report); err != nil {
					return err
				}
				a.logger.Info("wrote results workbook",
					zap.String("op", "main.bulk"),
					zap.String("path", outPath),
				)
			}

			return output.WriteReport(cmd.OutOrStdout(), a.conf.Output.Format, a.conf.Money(), report)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "also write the results to this .xlsx file")
	return cmd
}

func writeWorkbookFile(path string, report bulk.Report) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := bulk.WriteWorkbook(out, report); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (a *app) serveCommand() *cobra.Command {
	var (
		serverConfigPath string
		address          string
		maxUploadSize    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculator form and JSON API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverConfig, err := server.LoadConfig(serverConfigPath)
			if err != nil {
				return err
			}
			if address != "" {
				serverConfig.Address = address
			}
			if maxUploadSize != "" {
				limit, err := server.ParseSize(maxUploadSize)
				if err != nil {
					return fmt.Errorf("invalid --max-upload-size: %w", err)
				}
				serverConfig.SetUploadSizeBytes(limit)
			}

			logger := a.logger
			if serverConfig.Logging != (config.LoggingConfig{}) {
				logger, err = initializeLogger(serverConfig.Logging, a.logLevel)
				if err != nil {
					return fmt.Errorf("failed to initialize server logger: %w", err)
				}
				defer func() {
					_ = logger.Sync()
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			handler := server.NewHandler(logger, server.Options{
				MaxUploadSize: serverConfig.UploadSizeBytes(),
				Version:       version,
				Money:         serverConfig.Money(),
				Store:         store,
			})

			return runServer(ctx, logger, serverConfig, handler)
		},
	}

	cmd.Flags().StringVar(&serverConfigPath, "server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	cmd.Flags().StringVar(&address, "address", "", "listen address override (e.g. :8080)")
	cmd.Flags().StringVar(&maxUploadSize, "max-upload-size", "", "bulk upload limit override (e.g. 512K, 10M)")
	return cmd
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, logger *zap.Logger, cfg *server.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Timeouts.Read,
		WriteTimeout: cfg.Timeouts.Write,
		IdleTimeout:  cfg.Timeouts.Idle,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("op", "main.serve"),
			zap.String("address", cfg.Address),
			zap.Int64("maxUploadSize", cfg.UploadSizeBytes()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down server", zap.String("op", "main.serve"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}

	logger.Info("server exited", zap.String("op", "main.serve"))
	return nil
}

func (a *app) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show or clear the stored inputs",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored inputs as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			snap, err := store.Load(cmd.Context())
			if errors.Is(err, snapshot.ErrNotFound) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no stored inputs")
				return nil
			}
			if err != nil {
				return err
			}
			return output.JSONFormat(cmd.OutOrStdout(), snap)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("cleared stored inputs", zap.String("op", "main.snapshot"))
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}
