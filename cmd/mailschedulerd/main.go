package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/caarlos0/env/v11"
	"github.com/go-pg/pg"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	mailgunclient "github.com/mailgun/mailgun-go/v3"
	"github.com/sirupsen/logrus"

	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
	awsprovider "github.com/interactive-solutions/go-mailscheduler/provider/aws"
	"github.com/interactive-solutions/go-mailscheduler/provider/mailgun"
	"github.com/interactive-solutions/go-mailscheduler/provider/smtp"
	"github.com/interactive-solutions/go-mailscheduler/provider/webhook"
	gopg "github.com/interactive-solutions/go-mailscheduler/storage/go-pg"
)

type config struct {
	HttpAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseAddr     string `env:"DATABASE_ADDR" envDefault:"localhost:5432"`
	DatabaseUser     string `env:"DATABASE_USER,required"`
	DatabasePassword string `env:"DATABASE_PASSWORD,required"`
	DatabaseName     string `env:"DATABASE_NAME,required"`

	// smtp, mailgun, ses or webhook
	MailTransport string `env:"MAIL_TRANSPORT" envDefault:"smtp"`

	MailgunDomain string `env:"MAILGUN_DOMAIN"`
	MailgunApiKey string `env:"MAILGUN_API_KEY"`
	MailFrom      string `env:"MAIL_FROM"`

	ScanInterval time.Duration `env:"SCAN_INTERVAL" envDefault:"1m"`
	SendDelay    time.Duration `env:"SEND_DELAY" envDefault:"2s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	logger := logrus.New()

	// The .env file is optional, real deployments configure the process
	// environment directly.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.WithError(err).Fatal("failed to parse configuration")
	}

	var cryptoConfig mailscheduler.CryptoConfig
	if err := env.Parse(&cryptoConfig); err != nil {
		logger.WithError(err).Fatal("failed to parse crypto configuration")
	}

	db := pg.Connect(&pg.Options{
		Addr:     cfg.DatabaseAddr,
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
	})
	defer db.Close()

	transport, err := buildTransport(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build mail transport")
	}

	app, err := mailscheduler.NewApplication(
		mailscheduler.SetLogger(logger),
		mailscheduler.SetScheduleRepo(gopg.NewScheduleRepository(db)),
		mailscheduler.SetTemplateRepo(gopg.NewTemplateRepository(db)),
		mailscheduler.SetOrganizationRepo(gopg.NewOrganizationRepository(db)),
		mailscheduler.SetUserRepo(gopg.NewUserRepository(db)),
		mailscheduler.SetEmailTransport(transport),
		mailscheduler.SetPasswordCipher(mailscheduler.NewPasswordCipher(cryptoConfig)),
		mailscheduler.SetScanInterval(cfg.ScanInterval),
		mailscheduler.SetSendDelay(cfg.SendDelay),
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to build application")
	}

	router := mux.NewRouter()
	app.HttpHandler().RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.HttpAddr,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := app.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("scanner stopped")
		}
	}()

	go func() {
		logger.WithField("addr", cfg.HttpAddr).Info("listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Let the in flight batch drain before tearing down the process.
	app.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown failed")
	}
}

func buildTransport(cfg config, logger logrus.FieldLogger) (mailscheduler.EmailTransport, error) {
	switch cfg.MailTransport {
	case "smtp":
		var smtpConfig smtp.Config
		if err := env.Parse(&smtpConfig); err != nil {
			return nil, err
		}

		return smtp.NewSmtpTransport(smtpConfig), nil

	case "mailgun":
		client := mailgunclient.NewMailgun(cfg.MailgunDomain, cfg.MailgunApiKey)

		return mailgun.NewMailgunTransport(client, mailgun.SetFrom(cfg.MailFrom)), nil

	case "ses":
		sess, err := awssession.NewSession()
		if err != nil {
			return nil, err
		}

		return awsprovider.NewSesTransport(sess, cfg.MailFrom), nil

	case "webhook":
		var webhookConfig webhook.Config
		if err := env.Parse(&webhookConfig); err != nil {
			return nil, err
		}

		return webhook.NewWebhookTransport(webhookConfig), nil

	default:
		logger.WithField("transport", cfg.MailTransport).Warn("unknown mail transport, falling back to smtp")

		var smtpConfig smtp.Config
		if err := env.Parse(&smtpConfig); err != nil {
			return nil, err
		}

		return smtp.NewSmtpTransport(smtpConfig), nil
	}
}
