package authcore

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mojdigital/authcore/password"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()

	h, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	hash, err := h.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

// memoryDirectory is an in-memory PersonDirectory keyed by normalized
// username. Setting down simulates a source outage.
type memoryDirectory struct {
	mu      sync.Mutex
	records map[string]*PersonRecord
	down    bool
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{records: map[string]*PersonRecord{}}
}

func (d *memoryDirectory) add(record *PersonRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[NormalizeUsername(record.Username)] = record
}

func (d *memoryDirectory) Lookup(_ context.Context, username string) (*PersonRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, ErrDirectoryUnavailable
	}
	record, ok := d.records[NormalizeUsername(username)]
	if !ok {
		return nil, ErrPersonNotFound
	}
	copied := *record
	return &copied, nil
}

type memoryOverrideStore struct {
	mu      sync.Mutex
	records map[string]*OverrideRecord
}

func newMemoryOverrideStore() *memoryOverrideStore {
	return &memoryOverrideStore{records: map[string]*OverrideRecord{}}
}

func (s *memoryOverrideStore) Find(_ context.Context, username string) (*OverrideRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[NormalizeUsername(username)]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memoryOverrideStore) Upsert(_ context.Context, record *OverrideRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[NormalizeUsername(record.Username)] = &copied
	return nil
}

func (s *memoryOverrideStore) SetLocked(_ context.Context, username string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := NormalizeUsername(username)
	record, ok := s.records[key]
	if !ok {
		record = &OverrideRecord{Username: key, Enabled: true}
		s.records[key] = record
	}
	record.Locked = locked
	return nil
}

func (s *memoryOverrideStore) get(t *testing.T, username string) *OverrideRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[NormalizeUsername(username)]
	if !ok {
		t.Fatalf("expected override record for %s", username)
	}
	copied := *record
	return &copied
}

type memoryCredentialStore struct {
	mu     sync.Mutex
	hashes map[string]string
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{hashes: map[string]string{}}
}

func (s *memoryCredentialStore) UpdatePassword(_ context.Context, username, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[NormalizeUsername(username)] = newHash
	return nil
}

type sentMessage struct {
	Channel     MfaChannel
	Destination string
	Code        string
}

type memoryNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
}

func (n *memoryNotifier) Send(_ context.Context, channel MfaChannel, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, sentMessage{Channel: channel, Destination: destination, Code: code})
	return nil
}

func (n *memoryNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected at least one delivered message")
	}
	return n.sent[len(n.sent)-1]
}

func (n *memoryNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memoryRemote struct {
	mu        sync.Mutex
	passwords map[string]string
	down      bool
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{passwords: map[string]string{}}
}

func (r *memoryRemote) Authenticate(_ context.Context, username, secret string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return false, ErrDirectoryUnavailable
	}
	stored, ok := r.passwords[NormalizeUsername(username)]
	return ok && stored == secret, nil
}

// testFixture bundles the engine with every fake it was built from so tests
// can both drive the public API and inspect collaborator state.
type testFixture struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	engine    *Engine
	local     *memoryDirectory
	nomis     *memoryDirectory
	delius    *memoryDirectory
	overrides *memoryOverrideStore
	creds     *memoryCredentialStore
	notifier  *memoryNotifier
	remote    *memoryRemote
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.Mfa.DefaultPolicy = MfaPolicyNone
	cfg.Password.BcryptCost = 4
	return cfg
}

func newTestFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	f := &testFixture{
		mr:        mr,
		rdb:       rdb,
		local:     newMemoryDirectory(),
		nomis:     newMemoryDirectory(),
		delius:    newMemoryDirectory(),
		overrides: newMemoryOverrideStore(),
		creds:     newMemoryCredentialStore(),
		notifier:  &memoryNotifier{},
		remote:    newMemoryRemote(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(SourceLocal, f.local).
		WithDirectory(SourceNomis, f.nomis).
		WithDirectory(SourceDelius, f.delius).
		WithOverrideStore(f.overrides).
		WithRemoteAuthenticator(f.remote).
		WithCredentialStore(f.creds).
		WithNotifier(f.notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	f.engine = engine
	return f
}

func (f *testFixture) addLocalUser(t *testing.T, username, plainPassword string) *PersonRecord {
	t.Helper()

	record := &PersonRecord{
		Username:              NormalizeUsername(username),
		DisplayName:           "Test User",
		Email:                 "user@justice.gov.uk",
		Enabled:               true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		PasswordHash:          hashPassword(t, plainPassword),
	}
	f.local.add(record)
	return record
}

func (f *testFixture) addVerifiedOverride(t *testing.T, username string) {
	t.Helper()

	err := f.overrides.Upsert(context.Background(), &OverrideRecord{
		Username:       NormalizeUsername(username),
		Enabled:        true,
		Email:          "bob@justice.gov.uk",
		VerifiedEmail:  true,
		Mobile:         "07700900321",
		MobileVerified: true,
	})
	if err != nil {
		t.Fatalf("Upsert override failed: %v", err)
	}
}
