package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vduzgezen/lumera-dental-api/internal/config"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/cases"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/clinic"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/identity"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/registration"
	"github.com/vduzgezen/lumera-dental-api/internal/domain/shipping"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/auth"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/blobstore"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/db"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/mailer"
	"github.com/vduzgezen/lumera-dental-api/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lumera-server",
		Short: "Lumera dental lab portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	userRepo := identity.NewUserRepo(pool)
	addrRepo := identity.NewAddressRepo(pool)
	clinicRepo := clinic.NewRepo(pool)
	caseRepo := cases.NewRepo(pool)
	regRepo := registration.NewRepo(pool)

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}

	var signer blobstore.Signer
	if cfg.S3Bucket != "" {
		s3signer, err := blobstore.NewS3Signer(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize S3 signer")
		}
		signer = s3signer
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("using S3 for file uploads")
	} else {
		signer = blobstore.NewLocalSigner(cfg.PortalBaseURL)
		logger.Warn().Msg("S3_BUCKET not set, file upload URLs are local stubs")
	}

	mail := mailer.NewLogSender(logger, cfg.MailFrom)

	// Services
	uploadTTL := time.Duration(cfg.UploadURLTTL) * time.Second
	identitySvc := identity.NewService(userRepo, addrRepo)
	caseSvc := cases.NewService(caseRepo, userRepo, signer, uploadTTL, inTx)
	clinicSvc := clinic.NewService(clinicRepo, caseRepo)
	shippingSvc := shipping.NewService(caseRepo, userRepo, mail, inTx, logger)
	regSvc := registration.NewService(regRepo, userRepo, addrRepo, clinicRepo, mail, inTx, cfg.PortalBaseURL, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Unauthenticated surface: health, metrics, signup, account setup.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	public := e.Group("/api/v1")

	api := e.Group("/api/v1")
	switch cfg.ResolvedAuthMode() {
	case "development":
		logger.Warn().Msg("development auth mode: all requests run as admin")
		api.Use(auth.DevAuthMiddleware())
	case "external":
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	case "standalone":
		key, err := hex.DecodeString(cfg.AuthSigningKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid AUTH_SIGNING_KEY")
		}
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: key,
		}))
	}

	identity.NewHandler(identitySvc).RegisterRoutes(api, public)
	clinic.NewHandler(clinicSvc).RegisterRoutes(api)
	cases.NewHandler(caseSvc).RegisterRoutes(api)
	shipping.NewHandler(shippingSvc).RegisterRoutes(api)
	registration.NewHandler(regSvc).RegisterRoutes(api, public)

	// Serve
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
