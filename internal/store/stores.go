package store

// Stores bundles the typed stores over one KV.
type Stores struct {
	KV       KV
	Identity *IdentityKVStore
	Prekeys  *PrekeyKVStore
	Sessions *SessionKVStore
	Groups   *GroupKVStore
	Trust    *TrustKVStore
	Devices  *DeviceKVStore
	Rooms    *RoomKVStore
}

// NewStores builds every typed store over kv.
func NewStores(kv KV) *Stores {
	return &Stores{
		KV:       kv,
		Identity: NewIdentityKVStore(kv),
		Prekeys:  NewPrekeyKVStore(kv),
		Sessions: NewSessionKVStore(kv),
		Groups:   NewGroupKVStore(kv),
		Trust:    NewTrustKVStore(kv),
		Devices:  NewDeviceKVStore(kv),
		Rooms:    NewRoomKVStore(kv),
	}
}

// Close closes the underlying KV.
func (s *Stores) Close() error { return s.KV.Close() }
