package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/internal/core/ports"
	"github.com/cristivoicu/appserver/internal/infrastructure/repositories/memory"
	redisrepo "github.com/cristivoicu/appserver/internal/infrastructure/repositories/redis"
	"github.com/cristivoicu/appserver/pkg/config"
	"github.com/cristivoicu/appserver/pkg/utils"
)

// Factory creates repositories, backing the location store with Redis when it
// is enabled and reachable and falling back to memory otherwise. Directory,
// video and audit data always live in memory.
type Factory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	f := &Factory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.Dial(context.Background(),
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			logger.Warnw("redis unreachable, falling back to memory location store",
				"address", cfg.Redis.Address, "error", err)
			f.useRedis = false
		} else {
			f.redisClient = client
			logger.Infow("using redis location store", "address", cfg.Redis.Address)
		}
	}

	return f, nil
}

func (f *Factory) CreateUserRepository() ports.UserRepository {
	repo := memory.NewMemoryUserRepository()
	if err := f.seedBootstrapAdmin(repo); err != nil {
		f.logger.Errorw("failed to seed bootstrap admin", "error", err)
	}
	return repo
}

// seedBootstrapAdmin gives an empty directory one ADMIN account, since
// enrollment itself requires an authenticated admin connection.
func (f *Factory) seedBootstrapAdmin(repo ports.UserRepository) error {
	ba := f.cfg.Auth.BootstrapAdmin
	if ba.Username == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(ba.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	name := ba.Name
	if name == "" {
		name = ba.Username
	}

	return repo.Add(context.Background(), &domain.User{
		Username:   ba.Username,
		Password:   string(hash),
		Name:       name,
		Role:       domain.RoleAdmin,
		Status:     domain.StatusOffline,
		EnrolledAt: utils.Now(),
	})
}

func (f *Factory) CreateVideoRepository() ports.VideoRepository {
	return memory.NewMemoryVideoRepository()
}

func (f *Factory) CreateAuditRepository() ports.AuditRepository {
	return memory.NewMemoryAuditRepository()
}

func (f *Factory) CreateMapItemRepository() ports.MapItemRepository {
	return memory.NewMemoryMapItemRepository()
}

func (f *Factory) CreateLocationStore() ports.LocationStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisLocationStore(f.redisClient, f.cfg.Redis.LocationTTL)
	}
	return memory.NewMemoryLocationStore()
}

// Close closes the Redis connection if one was opened.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck pings Redis when it is in use.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
