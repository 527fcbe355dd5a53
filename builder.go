package authcore

import (
	"errors"

	"github.com/mojdigital/authcore/jwt"
	"github.com/mojdigital/authcore/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	directories map[AuthSource]PersonDirectory
	overrides   OverrideStore
	remote      RemoteAuthenticator
	credentials CredentialStore
	notifier    Notifier
	locker      AccountLocker
	auditSink   AuditSink
	logger      *zap.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config:      defaultConfig(),
		directories: make(map[AuthSource]PersonDirectory),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithDirectory registers the person directory for one credential source.
// At least one directory must be registered before Build.
func (b *Builder) WithDirectory(source AuthSource, dir PersonDirectory) *Builder {
	b.directories[source] = dir
	return b
}

// WithOverrideStore describes the withoverridestore operation and its observable behavior.
//
// WithOverrideStore may return an error when input validation, dependency calls, or security checks fail.
// WithOverrideStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithOverrideStore(store OverrideStore) *Builder {
	b.overrides = store
	return b
}

// WithRemoteAuthenticator describes the withremoteauthenticator operation and its observable behavior.
//
// WithRemoteAuthenticator may return an error when input validation, dependency calls, or security checks fail.
// WithRemoteAuthenticator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRemoteAuthenticator(ra RemoteAuthenticator) *Builder {
	b.remote = ra
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
//
// WithCredentialStore may return an error when input validation, dependency calls, or security checks fail.
// WithCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithNotifier describes the withnotifier operation and its observable behavior.
//
// WithNotifier may return an error when input validation, dependency calls, or security checks fail.
// WithNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAccountLocker overrides the default locker, which writes the locked
// flag through the override store.
func (b *Builder) WithAccountLocker(l AccountLocker) *Builder {
	b.locker = l
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(b.directories) == 0 {
		return nil, errors.New("at least one person directory required")
	}
	if b.overrides == nil {
		return nil, errors.New("override store required")
	}
	if _, ok := b.directories[SourceDelius]; ok && b.remote == nil {
		return nil, errors.New("delius directory requires a remote authenticator")
	}

	engine := &Engine{
		config:      cfg,
		overrides:   b.overrides,
		remote:      b.remote,
		credentials: b.credentials,
		notifier:    b.notifier,
	}

	engine.directories = make(map[AuthSource]PersonDirectory, len(b.directories))
	for source, dir := range b.directories {
		engine.directories[source] = dir
	}

	engine.locker = b.locker
	if engine.locker == nil {
		engine.locker = &overrideLocker{overrides: b.overrides}
	}

	engine.logger = b.logger
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}

	engine.tokens = newTokenStore(b.redis, cfg.Token)
	engine.retries = newRetryTracker(b.redis, cfg.Lockout)
	engine.throttle = newRequestLimiter(b.redis, cfg.Throttle)
	engine.resolver = newIdentityResolver(engine.directories, b.overrides)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher, err := newPasswordHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	if cfg.Session.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
			PublicKey:     cloneBytes(cfg.Session.PublicKey),
			Issuer:        cfg.Session.Issuer,
			Audience:      cfg.Session.Audience,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	b.built = true

	return engine, nil
}

func newPasswordHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch cfg.Scheme {
	case "argon2id":
		return password.NewArgon2(password.Argon2Config{
			Memory:      cfg.Argon2Memory,
			Time:        cfg.Argon2Time,
			Parallelism: cfg.Argon2Parallelism,
			SaltLength:  cfg.Argon2SaltLength,
			KeyLength:   cfg.Argon2KeyLength,
		})
	default:
		return password.NewBcrypt(cfg.BcryptCost)
	}
}
