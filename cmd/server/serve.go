package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/client"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/config"
	"github.com/pesio-ai/be-timesheet-approvals/internal/database"
	"github.com/pesio-ai/be-timesheet-approvals/internal/handler"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
	"github.com/pesio-ai/be-timesheet-approvals/internal/middleware"
	"github.com/pesio-ai/be-timesheet-approvals/internal/repository"
	"github.com/pesio-ai/be-timesheet-approvals/internal/rpc"
	"github.com/pesio-ai/be-timesheet-approvals/internal/service"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the Postgres schema before serving")
}

// stores is the pair of persistence backends selected by DB_DRIVER.
type stores struct {
	approvals approval.Store
	entries   service.EntryStore
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, migrate bool) (*stores, error) {
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		approvals, err := repository.NewGormApprovalRepository(db)
		if err != nil {
			database.CloseSQLite(db)
			return nil, err
		}
		entries, err := repository.NewGormTimeEntryRepository(db)
		if err != nil {
			database.CloseSQLite(db)
			return nil, err
		}
		return &stores{
			approvals: approvals,
			entries:   entries,
			close:     func() { database.CloseSQLite(db) },
		}, nil

	default:
		db, err := database.New(ctx, database.Config{
			DSN:         cfg.Database.PostgresDSN(),
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &stores{
			approvals: repository.NewApprovalRepository(db),
			entries:   repository.NewTimeEntryRepository(db),
			close:     db.Close,
		}, nil
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := newLogger(cfg)
	log.Info().
		Str("environment", cfg.Service.Environment).
		Str("db_driver", cfg.Database.Driver).
		Msg("Starting Timesheet Approvals Service")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Initialize stores
	st, err := openStores(ctx, cfg, serveMigrate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.close()
	log.Info().Msg("Database connection established")

	// Initialize notification publisher
	nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	if nc != nil {
		defer nc.Drain()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, approval emails will only be logged")
	}
	publisher := client.NewNotificationPublisher(nc, cfg.NATS.Subject, log.Component("notifications").Logger)

	// Initialize services
	clk := clock.Real()
	tokens, err := newTokenService(cfg, clk)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise link signer")
	}
	guard := approval.NewGuard()
	approvalService := service.NewApprovalService(st.approvals, st.entries, guard, tokens, publisher, service.LinkConfig{
		ApproveURL: cfg.Links.ApproveURL,
		RejectURL:  cfg.Links.RejectURL,
	}, clk, log)
	entryService := service.NewTimeEntryService(st.entries, st.approvals, guard, log)

	// Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewHTTPHandler(approvalService, entryService, log).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      withMiddleware(mux, cfg, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer()
	rpc.RegisterApprovalServiceServer(grpcServer, handler.NewGRPCHandler(approvalService, log.Logger))
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
			cancel()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return nil
}

func withMiddleware(mux *http.ServeMux, cfg *config.Config, log *logger.Logger) http.Handler {
	var h http.Handler = mux
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.RequestID(h)
	return h
}
