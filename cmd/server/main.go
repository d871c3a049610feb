package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-envconfig"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// ServerConfig is the process-level configuration, read from the environment.
type ServerConfig struct {
	Addr    string `env:"ADDR,default=:3000"`
	DSN     string `env:"DATABASE_DSN,default=file:accounts.db?cache=shared&_fk=1"`
	BaseURL string `env:"BASE_URL,default=http://localhost:3000"`
	Debug   bool   `env:"DEBUG,default=false"`

	MaxLoginAttempts int `env:"MAX_LOGIN_ATTEMPTS,default=5"`
	PasswordMin      int `env:"PASSWORD_MIN_LENGTH,default=8"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM,default=no-reply@localhost"`
}

func main() {
	ctx := context.Background()

	cfg := ServerConfig{}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("parsing env vars: %v", err)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}

	if err := runMigrations(ctx, sqldb); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	svcCfg := accounts.DefaultConfig()
	svcCfg.MaxLoginAttempts = cfg.MaxLoginAttempts
	svcCfg.PasswordPolicy.MinLength = cfg.PasswordMin

	opts := []accounts.ServiceOption{}
	if cfg.SMTPHost != "" {
		mailer, err := accounts.NewMailer(accounts.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, cfg.BaseURL)
		if err != nil {
			log.Fatalf("building mailer: %v", err)
		}
		opts = append(opts, accounts.WithNotifier(mailer))
	}

	svc := accounts.NewService(repo, svcCfg, opts...)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:       "go-accounts",
			StrictRouting: false,
		}))
	})

	accounts.RegisterAccountRoutes(srv.Router(),
		accounts.WithControllerService(svc),
	)

	srv.Serve(cfg.Addr)

	waitExitSignal()
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(accounts.GetMigrationsFS())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
