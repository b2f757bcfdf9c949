package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"parkfee-bot/internal/domain"
)

type mockCities map[string]domain.CityEndpoint

func (m mockCities) Lookup(id string) (domain.CityEndpoint, bool) {
	ep, ok := m[id]
	return ep, ok
}

func citiesOf(ids ...string) mockCities {
	m := mockCities{}
	for _, id := range ids {
		m[id] = domain.CityEndpoint{ID: id, Name: id + "市", URLTemplate: "https://" + id + ".test/{plate}/{type}"}
	}
	return m
}

type fetchBehavior struct {
	result     domain.SourceResult
	delay      time.Duration
	ignoreCtx  bool
	waitForCtx bool
}

type mockFetcher struct {
	mu        sync.Mutex
	behaviors map[string]fetchBehavior
	calls     []string
	completed []string
	gotCtxErr map[string]error
}

func newMockFetcher(b map[string]fetchBehavior) *mockFetcher {
	return &mockFetcher{behaviors: b, gotCtxErr: map[string]error{}}
}

func (m *mockFetcher) Fetch(ctx context.Context, ep domain.CityEndpoint, _ domain.Plate, _ domain.VehicleType) domain.SourceResult {
	m.mu.Lock()
	m.calls = append(m.calls, ep.ID)
	b := m.behaviors[ep.ID]
	m.mu.Unlock()

	switch {
	case b.waitForCtx:
		<-ctx.Done()
		m.record(ep.ID, ctx.Err())
		return domain.FailureResult(domain.FailureTimeout, domain.ReasonTimeout)
	case b.ignoreCtx:
		time.Sleep(b.delay)
	case b.delay > 0:
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			m.record(ep.ID, ctx.Err())
			return domain.FailureResult(domain.FailureTimeout, domain.ReasonTimeout)
		}
	}
	m.record(ep.ID, ctx.Err())
	return b.result
}

func (m *mockFetcher) record(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	m.gotCtxErr[id] = err
}

func bills(total float64, amounts ...float64) domain.SourceResult {
	s := domain.BillSummary{TotalCount: len(amounts), TotalAmount: total}
	for i, a := range amounts {
		s.Bills = append(s.Bills, domain.Bill{
			ParkingDate:  "2026-01-0" + string(rune('1'+i)),
			PayLimitDate: "2026-02-01",
			ParkingHours: 1,
			Amount:       a,
		})
	}
	return domain.SuccessResult(s)
}

func newQueryService(t *testing.T, cities CityLookup, f Fetcher, opts QueryOptions) *QueryService {
	t.Helper()
	svc, err := NewQueryService(cities, f, nil, opts)
	require.NoError(t, err)
	return svc
}

func TestNewQueryService_ValidatesDependencies(t *testing.T) {
	_, err := NewQueryService(nil, newMockFetcher(nil), nil, QueryOptions{})
	require.Error(t, err)
	_, err = NewQueryService(citiesOf("a"), nil, nil, QueryOptions{})
	require.Error(t, err)

	svc, err := NewQueryService(citiesOf("a"), newMockFetcher(nil), nil, QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, defaultQueryTimeout, svc.timeout)
	require.Equal(t, defaultMaxItems, svc.composer.maxItems)
}

func TestQuery_PreservesRequestOrderNotCompletionOrder(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: bills(100, 100), delay: 30 * time.Millisecond},
		"b": {ignoreCtx: true, delay: 400 * time.Millisecond},
		"c": {result: bills(200, 200)},
	})
	svc := newQueryService(t, citiesOf("a", "b", "c"), f, QueryOptions{Timeout: 100 * time.Millisecond})

	started := time.Now()
	report := svc.Query(context.Background(), "ABC-1234", domain.VehicleCar, []string{"a", "b", "c"})
	require.Less(t, time.Since(started), 350*time.Millisecond, "timed out source must not hold the aggregate")

	require.Len(t, report.Sections, 3)
	require.True(t, strings.HasPrefix(report.Sections[0], "【a市】"))
	require.Equal(t, "【b市】查詢失敗："+domain.ReasonTimeout, report.Sections[1])
	require.True(t, strings.HasPrefix(report.Sections[2], "【c市】"))

	require.Equal(t, domain.FailureTimeout, report.Outcomes[1].Result.FailureKind)
	require.Equal(t, domain.ResultSuccess, report.Outcomes[0].Result.Kind)
	require.Equal(t, domain.ResultSuccess, report.Outcomes[2].Result.Kind)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.ElementsMatch(t, []string{"a", "b", "c"}, f.calls)
	require.Equal(t, "c", f.completed[0])
}

func TestQuery_CallsRunConcurrently(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: domain.NoPendingFeesResult(), delay: 80 * time.Millisecond},
		"b": {result: domain.NoPendingFeesResult(), delay: 80 * time.Millisecond},
		"c": {result: domain.NoPendingFeesResult(), delay: 80 * time.Millisecond},
	})
	svc := newQueryService(t, citiesOf("a", "b", "c"), f, QueryOptions{Timeout: time.Second})

	started := time.Now()
	svc.Query(context.Background(), "ABC", domain.VehicleCar, []string{"a", "b", "c"})
	require.Less(t, time.Since(started), 200*time.Millisecond)
}

func TestQuery_IndependentTimeouts(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"slow": {waitForCtx: true},
		"ok":   {result: bills(50, 50), delay: 60 * time.Millisecond},
	})
	svc := newQueryService(t, citiesOf("slow", "ok"), f, QueryOptions{Timeout: 120 * time.Millisecond})

	report := svc.Query(context.Background(), "ABC", domain.VehicleCar, []string{"slow", "ok"})
	require.Equal(t, domain.FailureTimeout, report.Outcomes[0].Result.FailureKind)
	require.Equal(t, domain.ResultSuccess, report.Outcomes[1].Result.Kind)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, done := f.gotCtxErr["slow"]
		return done
	}, time.Second, 5*time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(t, f.gotCtxErr["ok"], "one source's timeout must not cancel another")
	require.ErrorIs(t, f.gotCtxErr["slow"], context.DeadlineExceeded)
}

func TestQuery_CallerCancellationDoesNotCancelDispatchedCalls(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: bills(10, 10), delay: 50 * time.Millisecond},
	})
	svc := newQueryService(t, citiesOf("a"), f, QueryOptions{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	report := svc.Query(ctx, "ABC", domain.VehicleCar, []string{"a"})
	require.Equal(t, domain.ResultSuccess, report.Outcomes[0].Result.Kind)
}

func TestQuery_UnsupportedCityMakesNoCall(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: bills(100, 100)},
	})
	svc := newQueryService(t, citiesOf("a"), f, QueryOptions{})

	report := svc.Query(context.Background(), "ABC", domain.VehicleCar, []string{"zz", "a"})
	require.Equal(t, domain.FailureUnsupported, report.Outcomes[0].Result.FailureKind)
	require.Equal(t, "【zz】查詢失敗："+domain.ReasonUnsupported, report.Sections[0])
	require.Equal(t, []string{"a"}, f.calls)
}

func TestQuery_AllNoPendingFees(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: domain.NoPendingFeesResult()},
		"b": {result: domain.NoPendingFeesResult()},
	})
	svc := newQueryService(t, citiesOf("a", "b"), f, QueryOptions{})

	report := svc.Query(context.Background(), "ABC", domain.VehicleMotorcycle, []string{"a", "b", "unknown"})
	require.Equal(t, []string{noPendingFeesText}, report.Sections)
	require.Equal(t, "車牌 ABC（機車）停車費查詢結果", report.Header)
	require.Equal(t, "車牌 ABC（機車）停車費查詢結果\n\n"+noPendingFeesText, report.Text())
}

func TestQuery_UsesDefaultCities(t *testing.T) {
	f := newMockFetcher(map[string]fetchBehavior{
		"a": {result: domain.NoPendingFeesResult()},
		"b": {result: domain.NoPendingFeesResult()},
	})
	svc := newQueryService(t, citiesOf("a", "b"), f, QueryOptions{DefaultCities: []string{"b"}})

	svc.Query(context.Background(), "ABC", domain.VehicleCar, nil)
	require.Equal(t, []string{"b"}, f.calls)
}
