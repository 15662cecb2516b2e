package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const devicesRoot = "devices"

// DeviceKVStore caches verified remote device identities.
type DeviceKVStore struct {
	kv KV
}

func NewDeviceKVStore(kv KV) *DeviceKVStore { return &DeviceKVStore{kv: kv} }

func (s *DeviceKVStore) SaveDevice(ctx context.Context, dev domain.DeviceIdentity) error {
	return putJSON(ctx, s.kv, Key(devicesRoot, string(dev.UserID), string(dev.DeviceID)), dev)
}

func (s *DeviceKVStore) LoadDevice(ctx context.Context, dev domain.DeviceKey) (domain.DeviceIdentity, bool, error) {
	return getJSON[domain.DeviceIdentity](ctx, s.kv, Key(devicesRoot, string(dev.UserID), string(dev.DeviceID)))
}

func (s *DeviceKVStore) ListDevices(ctx context.Context, user domain.UserID) ([]domain.DeviceIdentity, error) {
	return listJSON[domain.DeviceIdentity](ctx, s.kv, Prefix(devicesRoot, string(user)))
}

var _ domain.DeviceStore = (*DeviceKVStore)(nil)
