package app

import (
	"context"
	"log/slog"
	"os"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/facade"
	"roomcrypt/internal/store"
)

// App bundles the opened storage and the crypto facade for the CLI.
type App struct {
	Config Config
	Log    *slog.Logger
	KV     store.KV
	Stores *store.Stores
	Crypto *facade.Facade
}

// New validates cfg, opens its storage backend and builds the facade.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Log, os.Stderr); err != nil {
			return nil, err
		}
	}

	kv, err := OpenKV(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	stores := store.NewStores(kv)
	crypto, err := facade.New(ctx, FacadeStores(stores), facade.Options{
		UserID:              domain.UserID(cfg.UserID),
		DeviceID:            domain.DeviceID(cfg.DeviceID),
		SharePolicy:         domain.SharePolicy{RequireVerification: cfg.Crypto.RequireVerification},
		RotationPeriod:      cfg.Crypto.RotationPeriod,
		RotationMessages:    cfg.Crypto.RotationMessages,
		UndecryptableWindow: cfg.Crypto.UndecryptableWindow,
		PendingLimit:        cfg.Crypto.PendingLimit,
		Logger:              logger,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return &App{Config: cfg, Log: logger, KV: kv, Stores: stores, Crypto: crypto}, nil
}

// Close releases the storage backend.
func (a *App) Close() error { return a.KV.Close() }
