package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/fmuoria/cold-outreach-agent/internal/agent"
	"github.com/fmuoria/cold-outreach-agent/internal/api"
	"github.com/fmuoria/cold-outreach-agent/internal/compose"
	"github.com/fmuoria/cold-outreach-agent/internal/config"
	"github.com/fmuoria/cold-outreach-agent/internal/db"
	"github.com/fmuoria/cold-outreach-agent/internal/events"
	"github.com/fmuoria/cold-outreach-agent/internal/export"
	"github.com/fmuoria/cold-outreach-agent/internal/history"
	"github.com/fmuoria/cold-outreach-agent/internal/identity"
	"github.com/fmuoria/cold-outreach-agent/internal/ingestion"
	"github.com/fmuoria/cold-outreach-agent/internal/llm"
	"github.com/fmuoria/cold-outreach-agent/internal/logging"
	"github.com/fmuoria/cold-outreach-agent/internal/mailer"
	"github.com/fmuoria/cold-outreach-agent/internal/oauth"
	"github.com/fmuoria/cold-outreach-agent/internal/session"
)

func main() {
	app := kingpin.New("cold-outreach-agent", "Drafts cold emails from a résumé and sends them through Gmail")

	configPath := app.Flag("config", "Path to a YAML or JSON config file").Envar("CONFIG_PATH").Short('c').String()
	verbose := app.Flag("verbose", "Enables debug logging").Short('v').Bool()
	pretty := app.Flag("pretty", "Enables pretty logging").Short('p').Bool()

	serveCmd := app.Command("serve", "Run the web application").Default()

	exportCmd := app.Command("export", "Write a user's outreach history to an Excel workbook")
	exportUser := exportCmd.Flag("user", "Account email whose history is exported").Required().String()
	exportOut := exportCmd.Flag("out", "Output path").Default("outreach_history.xlsx").String()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, *pretty || cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch command {
	case serveCmd.FullCommand():
		err = serve(cfg, logger)
	case exportCmd.FullCommand():
		err = exportHistory(cfg, logger, *exportUser, *exportOut)
	}
	if err != nil {
		logger.Fatal("cold-outreach-agent failed", zap.String("command", command), zap.Error(err))
	}
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	pool, err := db.NewConnection(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	identityService, err := buildIdentity(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	sessionStore, stopSessions, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopSessions()
	sessions := session.NewManager(sessionStore, session.ManagerOptions{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}, logger.Named("session"))

	generator, closeGenerator, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGenerator()

	prompts, err := compose.NewPromptBuilderFromFile(cfg.LLM.PromptTemplatePath, cfg.LLM.ResumeBudget, cfg.LLM.MinWords)
	if err != nil {
		return err
	}
	outreachAgent := agent.NewOutreachAgent(
		ingestion.NewPDFExtractor(logger.Named("ingestion")),
		prompts,
		generator,
		cfg.LLM.SystemPrompt,
		cfg.Mail.Subject,
		logger.Named("agent"),
	)

	delegate, err := buildDelegate(cfg)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger.Named("events"))
		if err != nil {
			return err
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	server := api.NewServer(api.Deps{
		Agent:    outreachAgent,
		Identity: identityService,
		Sessions: sessions,
		OAuth:    delegate,
		Mailer:   mailer.NewGmailSender(logger.Named("mailer")),
		History:  history.NewRepository(pool),
		Events:   publisher,
		Logger:   logger.Named("http"),
	}, api.Options{
		RequireLogin:   cfg.Policy.RequireLogin,
		RateLimitRPS:   cfg.Policy.RateLimitRPS,
		RateLimitBurst: cfg.Policy.RateLimitBurst,
	})
	defer server.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("public_url", cfg.Server.PublicURL),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("identity_backend", cfg.Identity.Backend),
			zap.String("session_backend", cfg.Session.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildIdentity(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*identity.Service, error) {
	profiles := identity.NewPostgresStore(pool)

	var credentials identity.CredentialStore = profiles
	if cfg.Identity.Backend == config.IdentityToolkit {
		var data []byte
		if cfg.Identity.CredentialsFile != "" {
			var err error
			data, err = os.ReadFile(cfg.Identity.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read service account credentials: %w", err)
			}
		} else {
			logger.Info("no service account file configured, using application default credentials")
		}
		admin, err := identity.NewAuthClient(ctx, cfg.Identity.ProjectID, data)
		if err != nil {
			return nil, err
		}
		credentials = identity.NewIdentityToolkitStore(admin, cfg.Identity.BaseURL, cfg.Identity.APIKey, logger.Named("identity"))
	}

	return identity.NewService(credentials, profiles, logger.Named("identity")), nil
}

func buildSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend == config.SessionRedis {
		rdb := session.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Redis session store connected", zap.String("addr", cfg.Redis.Addr))
		return session.NewRedisStore(rdb), func() { rdb.Close() }, nil
	}

	store := session.NewMemoryStore()
	ticker := time.NewTicker(time.Minute)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := store.Sweep(); n > 0 {
					logger.Debug("expired sessions removed", zap.Int("count", n))
				}
			case <-done:
				return
			}
		}
	}()
	return store, func() {
		ticker.Stop()
		close(done)
	}, nil
}

func buildGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Generator, func(), error) {
	if cfg.LLM.Provider == config.ProviderVertex {
		client, err := llm.NewVertexAIClient(ctx, cfg.LLM.Project, cfg.LLM.Location, cfg.LLM.Model, logger.Named("llm"))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}
	client := llm.NewChatClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, logger.Named("llm"))
	return client, func() {}, nil
}

func buildDelegate(cfg *config.Config) (*oauth.Delegate, error) {
	if cfg.OAuth.ClientSecretsFile != "" {
		return oauth.NewDelegateFromFile(cfg.OAuth.ClientSecretsFile, cfg.RedirectURL())
	}
	return oauth.NewDelegate(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.RedirectURL()), nil
}

func exportHistory(cfg *config.Config, logger *zap.Logger, user, out string) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.NewConnection(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	records, err := history.NewRepository(pool).List(ctx, user, 0)
	if err != nil {
		return err
	}

	written, err := export.ExportToExcel(records, user, out)
	if err != nil {
		return err
	}
	logger.Info("history exported", zap.String("user", user), zap.Int("records", len(records)), zap.String("path", written))
	return nil
}
