package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safetrail/go-identity-server/auth"
	"github.com/safetrail/go-identity-server/guardians"
	"github.com/safetrail/go-identity-server/internal/config"
	"github.com/safetrail/go-identity-server/notify"
	"github.com/safetrail/go-identity-server/otp"
	"github.com/safetrail/go-identity-server/prefs"
	"github.com/safetrail/go-identity-server/rides"
	"github.com/safetrail/go-identity-server/server"
	"github.com/safetrail/go-identity-server/store/redisstore"
	"github.com/safetrail/go-identity-server/token"
	"github.com/safetrail/go-identity-server/users"
	"github.com/safetrail/go-identity-server/users/repofake"
)

func main() {
	_ = godotenv.Load()

	log := newLogger()
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	srv, err := buildServer(c, log)
	if err != nil {
		return errors.Wrap(err, "buildServer")
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(log, httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildServer wires the store, notifier, and domain services together.
// Configuration problems surface here, before the listener opens.
func buildServer(c config.Config, log zerolog.Logger) (*server.Server, error) {
	if len(c.GetSigningKey()) == 0 {
		return nil, errors.New("JWT_SECRET must be set")
	}

	repo, err := buildStore(c, log)
	if err != nil {
		return nil, errors.Wrap(err, "buildStore")
	}

	hasher, err := users.NewHasher(c.GetBcryptCost())
	if err != nil {
		return nil, errors.Wrap(err, "NewHasher")
	}
	otpManager, err := otp.NewManager(repo, otp.WithDigits(c.GetOTPDigits()), otp.WithTTL(c.GetOTPExpiry()))
	if err != nil {
		return nil, errors.Wrap(err, "NewManager")
	}
	tokenIssuer, err := token.NewIssuer(c.GetSigningKey(), c.GetSessionTokenExpiry())
	if err != nil {
		return nil, errors.Wrap(err, "NewIssuer")
	}

	notifier := buildNotifier(c, log)

	authService, err := auth.NewService(repo, hasher, otpManager, tokenIssuer, notifier, auth.WithLogger(log))
	if err != nil {
		return nil, errors.Wrap(err, "auth.NewService")
	}
	rideService, err := rides.NewService(repo, c, c.GetUpstreamTimeout())
	if err != nil {
		return nil, errors.Wrap(err, "rides.NewService")
	}
	guardianService, err := guardians.NewService(repo, notifier, log)
	if err != nil {
		return nil, errors.Wrap(err, "guardians.NewService")
	}
	prefService, err := prefs.NewService(repo)
	if err != nil {
		return nil, errors.Wrap(err, "prefs.NewService")
	}

	return server.New(c, log, server.Services{
		Auth:      authService,
		Rides:     rideService,
		Guardians: guardianService,
		Prefs:     prefService,
		Tokens:    tokenIssuer,
	})
}

func buildStore(c config.Config, log zerolog.Logger) (users.Repo, error) {
	switch c.GetStoreBackend() {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "redis ping %s", c.GetRedisAddr())
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis store")
		return redisstore.New(rdb), nil
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return repofake.NewFakeUserRepo(), nil
	default:
		return nil, errors.Errorf("unknown STORE backend %q", c.GetStoreBackend())
	}
}

func buildNotifier(c config.Config, log zerolog.Logger) notify.Notifier {
	if c.GetSmtpAccount() != "" {
		notifier, err := notify.NewSMTPNotifier(c, notify.WithSendTimeout(c.GetUpstreamTimeout()))
		if err == nil {
			log.Info().Str("host", c.GetSmtpHost()).Msg("using smtp notifier")
			return notifier
		}
		log.Warn().Err(err).Msg("smtp notifier unavailable, falling back to log notifier")
	}
	log.Warn().Msg("using log notifier; one-time codes are written to the log")
	return notify.NewLogNotifier(log)
}

func newLogger() zerolog.Logger {
	var log zerolog.Logger
	if config.New().GetEnv() == "DEV" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log
}

func listenAndServe(log zerolog.Logger, httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
