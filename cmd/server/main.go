package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ticketdesk/ticketdesk/accesslog"
	"github.com/ticketdesk/ticketdesk/accesslog/accesslogfake"
	accesslogpg "github.com/ticketdesk/ticketdesk/accesslog/postgres"
	"github.com/ticketdesk/ticketdesk/auth"
	"github.com/ticketdesk/ticketdesk/identity"
	"github.com/ticketdesk/ticketdesk/identity/identityfake"
	identitypg "github.com/ticketdesk/ticketdesk/identity/postgres"
	"github.com/ticketdesk/ticketdesk/internal/config"
	"github.com/ticketdesk/ticketdesk/logindefense"
	"github.com/ticketdesk/ticketdesk/server"
	"github.com/ticketdesk/ticketdesk/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	logger := newLogger(c)

	if dsn := c.GetSentryDSN(); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: c.GetEnv(), AttachStacktrace: true}); err != nil {
			logger.Error().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := buildServer(ctx, c, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(ctx context.Context, c config.Config, logger zerolog.Logger) (*server.Server, error) {
	identityStore, logStore, err := buildStores(c, logger)
	if err != nil {
		return nil, err
	}

	signer, err := buildSigner(c)
	if err != nil {
		return nil, err
	}

	revoked := token.NewInMemoryRevokedTokenCache()
	revoked.StartSweeper(ctx, c.GetSweepInterval())

	tokens := token.New(identityStore, signer,
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithRevokedTokenCache(revoked),
	)

	defense := logindefense.New(
		logindefense.WithLimits(c.GetFailureThreshold(), c.GetFailureWindow(), c.GetBlockDuration()),
	)
	defense.StartSweeper(ctx, c.GetSweepInterval())

	verifier := auth.NewVerifier(identityStore, defense)
	authService, err := auth.NewService(verifier, tokens, identityStore, logStore, auth.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build auth service: %w", err)
	}

	return server.New(c, authService, tokens, logStore, logger), nil
}

func buildStores(c config.Config, logger zerolog.Logger) (identity.Store, accesslog.Store, error) {
	databaseURL := c.GetDatabaseURL()
	if databaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		return seededFakeStore(logger), accesslogfake.NewFakeStore(), nil
	}

	db, err := identitypg.Open(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return identitypg.NewStore(db), accesslogpg.NewStore(db), nil
}

// seededFakeStore creates the dev identity store with a default admin so a
// fresh checkout can log in.
func seededFakeStore(logger zerolog.Logger) identity.Store {
	store := identityfake.NewFakeStore()

	username := config.GetEnv("DEV_ADMIN_USERNAME", "admin")
	password := config.GetEnv("DEV_ADMIN_PASSWORD", "admin1234")
	hash, err := identity.HashPassword(password)
	if err != nil {
		logger.Error().Err(err).Msg("failed to hash dev admin password")
		return store
	}

	_ = store.Upsert(&identity.Identity{
		Username:     username,
		PasswordHash: hash,
		Role:         identity.RoleAdmin,
	})
	logger.Info().Str("username", username).Msg("seeded dev admin")
	return store
}

func buildSigner(c config.Config) (token.Signer, error) {
	if keyFile := c.GetSigningKeyFile(); keyFile != "" {
		pemBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key file: %w", err)
		}
		keyPair, err := token.LoadKeyPairFromPEM(string(pemBytes))
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		return token.NewKeyPairSigner(keyPair), nil
	}

	secret := c.GetJWTSecret()
	if secret == "" {
		return nil, errors.New("JWT_SECRET or SIGNING_KEY_FILE must be set")
	}
	return token.NewHMACSigner(secret), nil
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
