package app

import (
	"context"
	"os"

	"roomcrypt/internal/facade"
	"roomcrypt/internal/store"
	cryptoerrors "roomcrypt/pkg/errors"
)

// OpenKV opens the backend named by cfg, sealing it when a passphrase is
// configured.
func OpenKV(ctx context.Context, cfg StoreConfig) (store.KV, error) {
	const op = "app.OpenKV"
	var (
		kv  store.KV
		err error
	)
	switch cfg.Backend {
	case BackendMemory:
		kv = store.NewMemoryKV()
	case BackendFile:
		if err = os.MkdirAll(cfg.Dir, 0o700); err == nil {
			kv, err = store.NewFileKV(cfg.Dir)
		}
	case BackendRedis:
		client, cerr := store.NewRedisClient(ctx, cfg.RedisURL)
		if err = cerr; err == nil {
			kv = store.NewRedisKV(client, cfg.RedisNamespace)
		}
	case BackendPostgres:
		if err = store.Migrate(cfg.PostgresURL); err == nil {
			pool, perr := store.NewPostgresPool(ctx, cfg.PostgresURL)
			if err = perr; err == nil {
				kv = store.NewPostgresKV(pool)
			}
		}
	default:
		return nil, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "unknown store backend "+cfg.Backend)
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}

	if cfg.Passphrase == "" {
		return kv, nil
	}
	sealed, err := store.NewSealedKV(ctx, kv, cfg.Passphrase, store.KDF(cfg.KDF))
	if err != nil {
		_ = kv.Close()
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	return sealed, nil
}

// FacadeStores exposes the typed stores as the facade's store set.
func FacadeStores(st *store.Stores) facade.Stores {
	return facade.Stores{
		Identity: st.Identity,
		Prekeys:  st.Prekeys,
		Sessions: st.Sessions,
		Groups:   st.Groups,
		Trust:    st.Trust,
		Devices:  st.Devices,
		Rooms:    st.Rooms,
	}
}
