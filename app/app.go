// Package app assembles the hotel booking bot: configuration, storage,
// the WhatsApp transport, the payment gateway, and the conversation
// engine that ties them together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"hotelbot/bot"
	"hotelbot/core/bootstrap"
	"hotelbot/core/cmd"
	coreconfig "hotelbot/core/config"
	coredatabase "hotelbot/core/database"
	"hotelbot/core/whatsapp"
	"hotelbot/payment"
	"hotelbot/storage"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config combines the core configuration with the database settings.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads the combined configuration from a YAML file plus
// environment overrides.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// App is the running application behind the HTTP server.
type App struct {
	cfg    *Config
	db     *sqlx.DB
	client *whatsapp.Client
	router *gin.Engine
}

// Build runs the bootstrap pipeline and wires every component together.
func Build(carrier cmd.ConfigCarrier) (cmd.WebApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	client := whatsapp.NewClient(cfg.WhatsApp)
	simulator := payment.NewSimulator(time.Duration(cfg.Payment.SimulateDelaySeconds) * time.Second)

	engine := bot.NewEngine(bot.Deps{
		Conversations: storage.NewConversations(boot.DB),
		Catalog:       storage.NewHotels(boot.DB),
		Bookings:      storage.NewBookings(boot.DB),
		Notifier:      client,
		Payments:      simulator,
	})
	simulator.OnResolution(engine.CompletePayment)

	router := buildRouter(&cfg.Config, engine)

	return &App{
		cfg:    cfg,
		db:     boot.DB,
		client: client,
		router: router,
	}, nil
}

func buildRouter(cfg *coreconfig.Config, engine *bot.Engine) *gin.Engine {
	if cfg.Logging.Profile != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(whatsapp.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	whatsapp.NewWebhook(cfg, engine).Register(router)
	return router
}

// Handler exposes the HTTP routes.
func (a *App) Handler() http.Handler {
	return a.router
}

// Addr returns the listen address for the HTTP server.
func (a *App) Addr() string {
	return fmt.Sprintf("%s:%d", a.cfg.Server.Listen, a.cfg.Server.Port)
}

// Close drains the outbound message queue and releases the database.
func (a *App) Close(ctx context.Context) error {
	a.client.Close()
	return a.db.Close()
}
