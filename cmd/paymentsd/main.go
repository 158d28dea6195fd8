package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/vetpay/internal/config"
	"github.com/MarkoPoloResearchLab/vetpay/internal/database"
	"github.com/MarkoPoloResearchLab/vetpay/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/vetpay/internal/httpapi"
	"github.com/MarkoPoloResearchLab/vetpay/internal/oplog"
	"github.com/MarkoPoloResearchLab/vetpay/pkg/ledger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	flagDatabaseURL       = "database-url"
	flagStore             = "store"
	flagLogLevel          = "log-level"
	flagStrictTransitions = "strict-transitions"
	flagHTTPListenAddr    = "http-listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagRequestTimeout    = "request-timeout"
	flagAppointmentID     = "id"
	flagTotal             = "total"
	envPrefix             = "VETPAY"
	envFile               = ".env"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "paymentsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "paymentsd",
		Short:         "Appointment payment ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String(flagDatabaseURL, "", "postgres:// or sqlite:// database URL")
	cmd.PersistentFlags().String(flagStore, config.StoreGorm, "storage backend (gorm or pgx)")
	cmd.PersistentFlags().String(flagLogLevel, config.LogLevelInfo, "log level (info or debug)")
	cmd.PersistentFlags().Bool(flagStrictTransitions, false, "enforce the payment status transition table")

	cmd.AddCommand(newServeCommand(cfg), newAppointmentCommand(cfg))
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	cmd.Flags().String(flagHTTPListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request timeout (e.g. 5s)")

	return cmd
}

func newAppointmentCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointment",
		Short: "Manage appointment totals",
	}

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Register or update an appointment total",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, err := ledger.NewAppointmentID(viper.GetString(flagAppointmentID))
			if err != nil {
				return err
			}
			total, err := ledger.ParseTotalAmount(viper.GetString(flagTotal))
			if err != nil {
				return err
			}
			return runPriceAppointment(cmd.Context(), *cfg, appointmentID, total, cmd)
		},
	}
	priceCmd.Flags().String(flagAppointmentID, "", "appointment id (required)")
	priceCmd.Flags().String(flagTotal, "", "appointment total, e.g. 300.00 (required)")
	_ = priceCmd.MarkFlagRequired(flagAppointmentID)
	_ = priceCmd.MarkFlagRequired(flagTotal)

	cmd.AddCommand(priceCmd)
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, flagName := range []string{
		flagDatabaseURL, flagStore, flagLogLevel, flagStrictTransitions,
		flagHTTPListenAddr, flagGRPCListenAddr, flagAllowedOrigins, flagRequestTimeout,
		flagAppointmentID, flagTotal,
	} {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(flagName, flag); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(flagDatabaseURL)
	cfg.Store = viper.GetString(flagStore)
	cfg.LogLevel = viper.GetString(flagLogLevel)
	cfg.StrictTransitions = viper.GetBool(flagStrictTransitions)
	cfg.HTTPListenAddr = viper.GetString(flagHTTPListenAddr)
	cfg.GRPCListenAddr = viper.GetString(flagGRPCListenAddr)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(viper.GetString(flagAllowedOrigins))
	cfg.RequestTimeout = viper.GetDuration(flagRequestTimeout)
	return cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == config.LogLevelDebug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openService(ctx context.Context, cfg config.Config, logger *zap.Logger) (*ledger.Service, func(), error) {
	store, cleanup, err := database.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	ledgerOptions := []ledger.LedgerOption{}
	if cfg.StrictTransitions {
		ledgerOptions = append(ledgerOptions, ledger.WithStrictTransitions())
	}
	clock := func() time.Time { return time.Now().UTC() }
	paymentLedger, err := ledger.NewLedger(clock, ledgerOptions...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("payment ledger init: %w", err)
	}
	paymentService, err := ledger.NewService(store, paymentLedger, ledger.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("payment service init: %w", err)
	}
	return paymentService, cleanup, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	paymentService, cleanup, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	grpcserver.Register(grpcServer, grpcserver.NewPaymentServiceServer(paymentService))

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		grpcErrCh <- grpcServer.Serve(lis)
	}()
	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- httpapi.Run(serveCtx, cfg, paymentService, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return errors.Join(grpcServeError(<-grpcErrCh), <-httpErrCh)
	case serveErr := <-grpcErrCh:
		cancel()
		return errors.Join(grpcServeError(serveErr), <-httpErrCh)
	case httpErr := <-httpErrCh:
		grpcServer.GracefulStop()
		return errors.Join(httpErr, grpcServeError(<-grpcErrCh))
	}
}

func grpcServeError(err error) error {
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func runPriceAppointment(ctx context.Context, cfg config.Config, appointmentID ledger.AppointmentID, total ledger.AmountCents, cmd *cobra.Command) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	paymentService, cleanup, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	appointment, err := paymentService.PriceAppointment(ctx, appointmentID, total)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "appointment %s priced at %s (%s)\n",
		appointment.ID(), appointment.TotalAmount(), appointment.PaymentStatus())
	return nil
}
