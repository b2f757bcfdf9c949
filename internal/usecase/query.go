package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parkfee-bot/internal/domain"
)

const (
	defaultQueryTimeout = 2 * time.Second
	defaultMaxItems     = 100
)

// CityLookup resolves a city ID to its endpoint.
type CityLookup interface {
	Lookup(id string) (domain.CityEndpoint, bool)
}

// Fetcher queries one city. Implementations must not panic and always
// return a SourceResult.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint domain.CityEndpoint, plate domain.Plate, vehicle domain.VehicleType) domain.SourceResult
}

type QueryOptions struct {
	Timeout       time.Duration
	MaxItems      int
	DefaultCities []string
	Labels        VehicleLabels
}

// QueryService fans a plate query out to several cities and composes the
// report.
type QueryService struct {
	cities        CityLookup
	fetcher       Fetcher
	logger        *zap.Logger
	timeout       time.Duration
	defaultCities []string
	composer      reportComposer
}

func NewQueryService(cities CityLookup, fetcher Fetcher, logger *zap.Logger, opts QueryOptions) (*QueryService, error) {
	if cities == nil {
		return nil, errors.New("usecase: city lookup must not be nil")
	}
	if fetcher == nil {
		return nil, errors.New("usecase: fetcher must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultQueryTimeout
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	return &QueryService{
		cities:        cities,
		fetcher:       fetcher,
		logger:        logger,
		timeout:       opts.Timeout,
		defaultCities: append([]string(nil), opts.DefaultCities...),
		composer:      reportComposer{maxItems: opts.MaxItems, labels: opts.Labels},
	}, nil
}

// Query looks the plate up in every city of cityIDs (the default set when
// empty) and returns the report with sections in cityIDs order. Dispatched
// calls are not cancelled by ctx; each is bounded only by its own timeout.
func (s *QueryService) Query(ctx context.Context, plate domain.Plate, vehicle domain.VehicleType, cityIDs []string) domain.Report {
	if len(cityIDs) == 0 {
		cityIDs = s.defaultCities
	}

	started := time.Now()
	outcomes := make([]domain.CityOutcome, len(cityIDs))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, id := range cityIDs {
		endpoint, ok := s.cities.Lookup(id)
		if !ok {
			outcomes[i] = domain.CityOutcome{
				CityID:   id,
				CityName: id,
				Result:   domain.FailureResult(domain.FailureUnsupported, domain.ReasonUnsupported),
			}
			continue
		}
		outcomes[i] = domain.CityOutcome{CityID: id, CityName: endpoint.DisplayName()}
		g.Go(func() error {
			outcomes[i].Result = s.fetchOne(detached, endpoint, plate, vehicle)
			return nil
		})
	}
	_ = g.Wait()

	report := s.composer.compose(plate, vehicle, outcomes)
	s.logger.Info("fee query completed",
		zap.String("vehicle", vehicle.String()),
		zap.Int("cities", len(cityIDs)),
		zap.Int("sections", len(report.Sections)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return report
}

// fetchOne bounds a single city call by the per-call timeout even if the
// fetcher ignores its context.
func (s *QueryService) fetchOne(ctx context.Context, endpoint domain.CityEndpoint, plate domain.Plate, vehicle domain.VehicleType) domain.SourceResult {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	done := make(chan domain.SourceResult, 1)
	go func() {
		done <- s.fetcher.Fetch(callCtx, endpoint, plate, vehicle)
	}()

	var res domain.SourceResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = domain.FailureResult(domain.FailureTimeout, domain.ReasonTimeout)
	}

	if res.Kind == domain.ResultFailure {
		s.logger.Warn("city query failed",
			zap.String("city", endpoint.ID),
			zap.String("kind", string(res.FailureKind)),
			zap.String("reason", res.Reason),
			zap.Duration("latency", time.Since(started)),
		)
	}
	return res
}
