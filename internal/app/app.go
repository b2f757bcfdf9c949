package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parkfee-bot/handler"
	"parkfee-bot/internal/config"
	"parkfee-bot/internal/integrations/cityapi"
	"parkfee-bot/internal/integrations/paramstore"
	"parkfee-bot/internal/registry"
	"parkfee-bot/internal/repository"
	"parkfee-bot/internal/session"
	"parkfee-bot/internal/usecase"
)

const citiesParam = "cities"

// App wires the bot's dependencies.
type App struct {
	Handler *handler.Handler
	// Memory is set when sessions live in process memory.
	Memory *session.MemoryBackend

	redisClient *redis.Client
	logger      *zap.Logger
}

// Deps lets callers replace the external clients. Nil fields are built from
// the default AWS configuration on first use.
type Deps struct {
	AWSConfig *aws.Config
	Params    registry.ParamGetter
	Fetcher   usecase.Fetcher
}

// New constructs the application graph from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	awsCfg := func() (aws.Config, error) {
		if deps.AWSConfig == nil {
			loaded, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return aws.Config{}, fmt.Errorf("app: load aws config: %w", err)
			}
			deps.AWSConfig = &loaded
		}
		return *deps.AWSConfig, nil
	}

	if deps.Params == nil && cfg.ParamPrefix != "" {
		c, err := awsCfg()
		if err != nil {
			return nil, err
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(c))
		if err != nil {
			return nil, err
		}
		deps.Params = ps
	}

	reg, err := buildRegistry(ctx, cfg, deps.Params, logger)
	if err != nil {
		return nil, err
	}

	backend, err := a.sessionBackend(ctx, cfg, awsCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := session.NewStore(backend)
	if err != nil {
		a.Close()
		return nil, err
	}

	if deps.Fetcher == nil {
		deps.Fetcher = cityapi.NewClient()
	}
	labels := usecase.VehicleLabels(cfg.VehicleLabels())
	defaultCities := cfg.DefaultCities
	if len(defaultCities) == 0 {
		defaultCities = reg.IDs()
	}

	querier, err := usecase.NewQueryService(reg, deps.Fetcher, logger, usecase.QueryOptions{
		Timeout:       cfg.QueryTimeout,
		MaxItems:      cfg.MaxItems,
		DefaultCities: defaultCities,
		Labels:        labels,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	conversation, err := usecase.NewConversationService(store, querier, logger, usecase.ConversationOptions{
		StartKeywords: cfg.StartKeywords,
		Labels:        labels,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Handler, err = handler.NewHandler(conversation, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application initialized",
		zap.String("session_backend", cfg.Session.Backend),
		zap.Strings("cities", reg.IDs()),
		zap.Strings("default_cities", defaultCities),
	)
	return a, nil
}

func (a *App) sessionBackend(ctx context.Context, cfg config.Config, awsCfg func() (aws.Config, error)) (session.Backend, error) {
	switch cfg.Session.Backend {
	case config.BackendMemory:
		a.Memory = session.NewMemoryBackend(cfg.Session.TTL)
		return a.Memory, nil
	case config.BackendDynamoDB:
		c, err := awsCfg()
		if err != nil {
			return nil, err
		}
		return repository.New(awsdynamodb.NewFromConfig(c), cfg.Session.Table, cfg.Session.TTL)
	case config.BackendRedis:
		client, err := repository.NewRedisClient(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPassword)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		return repository.NewRedisSessions(client, cfg.Session.TTL)
	default:
		return nil, fmt.Errorf("app: unknown session backend %q", cfg.Session.Backend)
	}
}

// buildRegistry merges the configured cities with the optional overrides
// stored in Parameter Store.
func buildRegistry(ctx context.Context, cfg config.Config, params registry.ParamGetter, logger *zap.Logger) (*registry.Registry, error) {
	reg, err := registry.New(cfg.Cities...)
	if err != nil {
		return nil, err
	}
	if params != nil && cfg.ParamPrefix != "" {
		name := paramstore.ParamName(cfg.ParamPrefix, citiesParam)
		overrides, err := registry.LoadOverrides(ctx, params, name)
		switch {
		case errors.Is(err, paramstore.ErrNotFound):
			logger.Info("no city overrides stored", zap.String("param", name))
		case err != nil:
			return nil, err
		default:
			if reg, err = reg.Merge(overrides...); err != nil {
				return nil, err
			}
			logger.Info("applied city overrides", zap.String("param", name), zap.Int("count", len(overrides)))
		}
	}
	if reg.Len() == 0 {
		return nil, errors.New("app: no cities configured")
	}
	for _, id := range cfg.DefaultCities {
		if _, ok := reg.Lookup(id); !ok {
			logger.Warn("default city is not registered", zap.String("city", id))
		}
	}
	return reg, nil
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
