// Command campusd serves a local in-memory campus backend for trying
// campusctl without the real API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexjbarnes/campusctl/internal/auth"
	"github.com/alexjbarnes/campusctl/internal/logging"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/alexjbarnes/campusctl/internal/server"
	"golang.org/x/crypto/bcrypt"
)

var Version = "dev"

func main() {
	// Handle hash-password subcommand before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashPassword(in io.Reader, out, prompt io.Writer) error {
	fmt.Fprint(prompt, "Enter password: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return errors.New("no input")
	}

	hash, err := auth.HashPassword(scanner.Text(), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, hash)

	return nil
}

type config struct {
	ListenAddr    string
	Users         string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	CookiesOnly   bool
	SeedDemo      bool
	Environment   string
	LogLevel      string
}

func loadConfig(args []string) (*config, error) {
	cfg := &config{}

	fs := flag.NewFlagSet("campusd", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.Users, "users", os.Getenv("CAMPUSD_USERS"), "comma-separated email:bcrypt_hash pairs")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", os.Getenv("CAMPUSD_JWT_SECRET"), "access token signing key (random when empty)")
	fs.DurationVar(&cfg.AccessTTL, "access-ttl", auth.DefaultAccessTTL, "access token lifetime")
	fs.DurationVar(&cfg.RefreshTTL, "refresh-ttl", auth.DefaultRefreshTTL, "refresh token lifetime")
	fs.BoolVar(&cfg.RotateRefresh, "rotate-refresh", false, "issue a new refresh token on every renewal")
	fs.BoolVar(&cfg.CookiesOnly, "cookies-only", false, "return login tokens only as cookies")
	fs.BoolVar(&cfg.SeedDemo, "seed-demo", false, "start with a few demo students")
	fs.StringVar(&cfg.Environment, "environment", envOr("ENVIRONMENT", "development"), "production switches logs to JSON")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Users == "" {
		return nil, errors.New("CAMPUSD_USERS or --users is required (see 'campusd hash-password')")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// parseUsers parses "email1:hash1,email2:hash2". Emails cannot contain
// a colon, so the first one ends the email.
func parseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		email, hash, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid user entry (missing ':'): %s", pair)
		}

		if email == "" || hash == "" {
			return nil, fmt.Errorf("empty email or hash in: %s", pair)
		}

		users[email] = hash
	}

	if len(users) == 0 {
		return nil, errors.New("no users configured")
	}

	return users, nil
}

var demoStudents = []models.NewStudent{
	{Name: "Asha Rao", Roll: "1", ClassName: "10", Division: "A"},
	{Name: "Ravi Shah", Roll: "2", ClassName: "10", Division: "A"},
	{Name: "Zoë Kumar", Roll: "3", ClassName: "10", Division: "B"},
	{Name: "Imran Sheikh", Roll: "1", ClassName: "9", Division: "A"},
}

// backend is the assembled fake API.
type backend struct {
	handler http.Handler
	store   *auth.Store
}

func newBackend(cfg *config, logger *slog.Logger) (*backend, error) {
	users, err := parseUsers(cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("parsing users: %w", err)
	}

	store := auth.NewStore(auth.StoreOptions{
		RefreshTTL:          cfg.RefreshTTL,
		RotateRefreshTokens: cfg.RotateRefresh,
	}, logger)

	for email, hash := range users {
		name, _, _ := strings.Cut(email, "@")

		if _, err := store.AddUser(models.User{Name: name, Email: email, Role: "ADMIN"}, hash); err != nil {
			store.Stop()
			return nil, fmt.Errorf("adding user %s: %w", email, err)
		}
	}

	dir := server.NewDirectory(nil)

	if cfg.SeedDemo {
		for _, n := range demoStudents {
			if _, err := dir.AddStudent(n, ""); err != nil {
				store.Stop()
				return nil, fmt.Errorf("seeding students: %w", err)
			}
		}
	}

	handler := server.NewMux(server.MuxConfig{
		Store:     store,
		Issuer:    auth.NewIssuer([]byte(cfg.JWTSecret), cfg.AccessTTL),
		Directory: dir,
		Logger:    logger,
		Login:     auth.LoginOptions{CookiesOnly: cfg.CookiesOnly},
	})

	return &backend{handler: handler, store: store}, nil
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	b, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer b.store.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      b.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("starting campusd",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.Duration("access_ttl", cfg.AccessTTL),
		slog.Bool("rotate_refresh", cfg.RotateRefresh),
		slog.Bool("demo", cfg.SeedDemo),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
