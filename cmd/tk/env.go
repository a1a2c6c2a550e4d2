package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/amonks/timekeep/gateway"
	"github.com/amonks/timekeep/internal/config"
	"github.com/amonks/timekeep/internal/paths"
	"github.com/amonks/timekeep/internal/state"
	"github.com/amonks/timekeep/timer"
)

const (
	envURL  = "TIMEKEEP_URL"
	envUser = "TIMEKEEP_USER"
)

// loadConfig loads timekeep.toml from the working directory and the global config.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return config.Load(cwd)
}

// resolveURL picks the backend address: --url, then $TIMEKEEP_URL, then config.
func resolveURL(cfg *config.Config) string {
	if url := strings.TrimSpace(rootURL); url != "" {
		return url
	}
	if url := strings.TrimSpace(os.Getenv(envURL)); url != "" {
		return url
	}
	return cfg.GatewayURL()
}

func openSessionStore() (*state.Store, error) {
	dir, err := paths.DefaultStateDir()
	if err != nil {
		return nil, err
	}
	return state.NewStore(dir), nil
}

// resolveUser picks the acting user: --user, then $TIMEKEEP_USER, then the
// signed-in user, then config.
func resolveUser(cfg *config.Config, store *state.Store) (string, error) {
	if user := strings.TrimSpace(rootUser); user != "" {
		return user, nil
	}
	if user := strings.TrimSpace(os.Getenv(envUser)); user != "" {
		return user, nil
	}
	signedIn, err := store.SignedInUser()
	if err != nil {
		return "", err
	}
	if signedIn != "" {
		return signedIn, nil
	}
	if cfg.Gateway.User != "" {
		return cfg.Gateway.User, nil
	}
	return "", fmt.Errorf("not signed in: run 'tk login <user>' or pass --user")
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "tk: ", 0)
}

// commandEnv is what most commands need: config, the acting user and a
// timer manager talking to the backend.
type commandEnv struct {
	cfg     *config.Config
	store   *state.Store
	url     string
	userID  string
	manager *timer.Manager
	logger  *log.Logger
}

func openCommandEnv() (*commandEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openSessionStore()
	if err != nil {
		return nil, err
	}
	userID, err := resolveUser(cfg, store)
	if err != nil {
		return nil, err
	}
	url := resolveURL(cfg)
	logger := newLogger()
	manager, err := timer.New(gateway.NewClient(url), timer.Options{
		UserID:       userID,
		TickInterval: cfg.Timer.Tick,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &commandEnv{
		cfg:     cfg,
		store:   store,
		url:     url,
		userID:  userID,
		manager: manager,
		logger:  logger,
	}, nil
}

func (e *commandEnv) Close() {
	e.manager.Close()
}

func (e *commandEnv) newBeacon() *gateway.Beacon {
	return gateway.NewBeacon(e.url, gateway.BeaconOptions{
		Timeout: e.cfg.Gateway.BeaconTimeout,
		Logger:  e.logger,
	})
}
