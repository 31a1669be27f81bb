package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/pylife-houses/backend/internal/domain"
	"github.com/ps-vitor/pylife-houses/backend/pkg/logger"
)

type fakeFetcher struct {
	listings    []domain.Listing
	listingsErr error
	details     map[int]domain.Details
	detailErrs  map[int]error
	detailCalls []int
}

func (f *fakeFetcher) FetchListings(context.Context) ([]domain.Listing, error) {
	return f.listings, f.listingsErr
}

func (f *fakeFetcher) FetchDetails(_ context.Context, id int) (domain.Details, error) {
	f.detailCalls = append(f.detailCalls, id)
	if err := f.detailErrs[id]; err != nil {
		return domain.Details{}, err
	}
	return f.details[id], nil
}

type fakeRepo struct {
	rows      map[int]domain.Listing
	findErr   error
	saveErr   error
	saveCalls int
	lookups   int
}

func newFakeRepo(rows ...domain.Listing) *fakeRepo {
	r := &fakeRepo{rows: map[int]domain.Listing{}}
	for _, row := range rows {
		r.rows[row.ID] = row
	}
	return r
}

func (r *fakeRepo) FindByID(_ context.Context, id int) (*domain.Listing, error) {
	r.lookups++
	if r.findErr != nil {
		return nil, r.findErr
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *fakeRepo) SaveAll(_ context.Context, listings []domain.Listing) error {
	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, l := range listings {
		r.rows[l.ID] = l
	}
	return nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func newService(f *fakeFetcher, r *fakeRepo) *ScraperService {
	return NewScraperService(f, r, logger.Discard())
}

func ids(listings []domain.Listing) []int {
	out := make([]int, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func TestDetectChangesOwnerChanged(t *testing.T) {
	repo := newFakeRepo(domain.Listing{ID: 5, Owner: strPtr("Alice"), Price: floatPtr(12.5)})
	svc := newService(&fakeFetcher{}, repo)

	updates, err := svc.DetectChanges(context.Background(), []domain.Listing{{ID: 5, Owner: strPtr("Bob")}}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, ids(updates))
}

func TestDetectChangesZeroPriceForcesRecheck(t *testing.T) {
	repo := newFakeRepo(domain.Listing{ID: 7, Owner: strPtr("Carl"), Price: floatPtr(0)})
	svc := newService(&fakeFetcher{}, repo)

	updates, err := svc.DetectChanges(context.Background(), []domain.Listing{{ID: 7, Owner: strPtr("Carl")}}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, ids(updates))
}

func TestDetectChangesUnchangedExcluded(t *testing.T) {
	repo := newFakeRepo(
		domain.Listing{ID: 1, Owner: strPtr("Alice"), Price: floatPtr(10)},
		domain.Listing{ID: 2, Owner: nil, Price: floatPtr(25)},
		domain.Listing{ID: 3, Owner: strPtr("Dan"), Price: nil},
	)
	svc := newService(&fakeFetcher{}, repo)

	fetched := []domain.Listing{
		{ID: 1, Owner: strPtr("Alice")},
		{ID: 2, Owner: nil},
		{ID: 3, Owner: strPtr("Dan")},
	}
	updates, err := svc.DetectChanges(context.Background(), fetched, false)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestDetectChangesOwnershipToAvailable(t *testing.T) {
	repo := newFakeRepo(domain.Listing{ID: 4, Owner: strPtr("Alice"), Price: floatPtr(10)})
	svc := newService(&fakeFetcher{}, repo)

	updates, err := svc.DetectChanges(context.Background(), []domain.Listing{{ID: 4}}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, ids(updates))
}

func TestDetectChangesSkipsUnknownHouses(t *testing.T) {
	repo := newFakeRepo(domain.Listing{ID: 1, Owner: strPtr("Alice"), Price: floatPtr(0)})
	svc := newService(&fakeFetcher{}, repo)

	fetched := []domain.Listing{{ID: 1, Owner: strPtr("Alice")}, {ID: 99, Name: "Nowy dom"}}
	updates, err := svc.DetectChanges(context.Background(), fetched, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(updates))
}

func TestDetectChangesForceIncludesEverything(t *testing.T) {
	repo := newFakeRepo(domain.Listing{ID: 1, Owner: strPtr("Alice"), Price: floatPtr(10)})
	svc := newService(&fakeFetcher{}, repo)

	fetched := []domain.Listing{{ID: 1, Owner: strPtr("Alice")}, {ID: 2}, {ID: 3}}
	updates, err := svc.DetectChanges(context.Background(), fetched, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(updates))
	assert.Zero(t, repo.lookups)
}

func TestDetectChangesLookupError(t *testing.T) {
	repo := newFakeRepo()
	repo.findErr = errors.New("connection reset")
	svc := newService(&fakeFetcher{}, repo)

	_, err := svc.DetectChanges(context.Background(), []domain.Listing{{ID: 1}}, false)
	assert.ErrorIs(t, err, repo.findErr)
}

func TestScrapeAndStoreListingDownloadFailure(t *testing.T) {
	fetcher := &fakeFetcher{listingsErr: errors.New("dial tcp: connection refused")}
	repo := newFakeRepo()

	_, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), false)
	assert.ErrorIs(t, err, ErrListingDownload)
	assert.ErrorIs(t, err, fetcher.listingsErr)
	assert.Zero(t, repo.saveCalls)
}

func TestScrapeAndStoreNothingToDo(t *testing.T) {
	fetcher := &fakeFetcher{listings: []domain.Listing{{ID: 1, Owner: strPtr("Alice"), Price: floatPtr(10)}}}
	repo := newFakeRepo(domain.Listing{ID: 1, Owner: strPtr("Alice"), Price: floatPtr(10)})

	report, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Zero(t, report.Updates)
	assert.Zero(t, repo.saveCalls)
	assert.Empty(t, fetcher.detailCalls)
}

func TestScrapeAndStoreFetchesDetailsOnlyWhenPriceMissing(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	expiry := time.Date(2024, 5, 1, 0, 0, 0, 0, warsaw)

	fetcher := &fakeFetcher{
		listings: []domain.Listing{
			{ID: 5, Name: "Willa", Owner: strPtr("Bob"), Price: floatPtr(12.5)},
			{ID: 7, Name: "Domek", Owner: strPtr("Carl")},
		},
		details: map[int]domain.Details{
			7: {Price: floatPtr(30), Expiry: &expiry},
		},
	}
	repo := newFakeRepo(
		domain.Listing{ID: 5, Owner: strPtr("Alice"), Price: floatPtr(12.5)},
		domain.Listing{ID: 7, Owner: strPtr("Carl"), Price: floatPtr(0)},
	)

	report, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Report{Fetched: 2, Updates: 2, Saved: 2, Elapsed: report.Elapsed}, report)
	assert.Equal(t, []int{7}, fetcher.detailCalls)
	assert.Equal(t, 1, repo.saveCalls)

	willa := repo.rows[5]
	assert.Equal(t, "Bob", *willa.Owner)
	assert.Equal(t, 12.5, *willa.Price)
	assert.Nil(t, willa.Expiry)

	domek := repo.rows[7]
	assert.Equal(t, 30.0, *domek.Price)
	require.NotNil(t, domek.Expiry)
	assert.True(t, domek.Expiry.Equal(expiry))
}

func TestScrapeAndStoreDetailWithoutPriceStoresZero(t *testing.T) {
	fetcher := &fakeFetcher{
		listings: []domain.Listing{{ID: 3, Name: "Pustostan"}},
		details:  map[int]domain.Details{3: {}},
	}
	repo := newFakeRepo()

	_, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), true)
	require.NoError(t, err)
	require.Contains(t, repo.rows, 3)
	require.NotNil(t, repo.rows[3].Price)
	assert.Zero(t, *repo.rows[3].Price)
}

func TestScrapeAndStoreSkipsFailedDetails(t *testing.T) {
	fetcher := &fakeFetcher{
		listings: []domain.Listing{{ID: 1}, {ID: 2}, {ID: 3}},
		details:  map[int]domain.Details{3: {Price: floatPtr(15)}},
		detailErrs: map[int]error{
			1: errors.New("Not Found"),
			2: timeoutError{},
		},
	}
	repo := newFakeRepo()

	report, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, fetcher.detailCalls)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Saved)
	assert.NotContains(t, repo.rows, 1)
	assert.NotContains(t, repo.rows, 2)
	assert.Equal(t, 15.0, *repo.rows[3].Price)
}

func TestScrapeAndStoreNeverWritesUnknownHouses(t *testing.T) {
	fetcher := &fakeFetcher{listings: []domain.Listing{{ID: 42, Name: "Nowy", Price: floatPtr(1)}}}
	repo := newFakeRepo()

	report, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, report.Updates)
	assert.Empty(t, repo.rows)
	assert.Zero(t, repo.saveCalls)
}

func TestScrapeAndStoreForceInsertsUnknownHouses(t *testing.T) {
	fetcher := &fakeFetcher{listings: []domain.Listing{{ID: 42, Name: "Nowy", Price: floatPtr(1)}}}
	repo := newFakeRepo()

	_, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, repo.rows, 42)
}

func TestScrapeAndStoreSaveFailure(t *testing.T) {
	fetcher := &fakeFetcher{listings: []domain.Listing{{ID: 1, Price: floatPtr(1)}}}
	repo := newFakeRepo()
	repo.saveErr = errors.New("serialization failure")

	report, err := newService(fetcher, repo).ScrapeAndStore(context.Background(), true)
	assert.ErrorIs(t, err, repo.saveErr)
	assert.Zero(t, report.Saved)
}
