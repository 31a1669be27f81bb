package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ps-vitor/pylife-houses/backend/internal/domain"
	"github.com/ps-vitor/pylife-houses/backend/internal/repositories"
	"github.com/ps-vitor/pylife-houses/backend/internal/scraping/collectors/pylife"
)

// ErrListingDownload marks a failure to download or parse the summary table.
var ErrListingDownload = errors.New("could not download data from user panel")

// HouseFetcher is the panel side of a sync run.
type HouseFetcher interface {
	FetchListings(ctx context.Context) ([]domain.Listing, error)
	FetchDetails(ctx context.Context, id int) (domain.Details, error)
}

// Report summarises one sync run.
type Report struct {
	Fetched int
	Updates int
	Saved   int
	Skipped int
	Elapsed time.Duration
}

type ScraperService struct {
	fetcher HouseFetcher
	repo    repositories.HouseRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewScraperService(fetcher HouseFetcher, repo repositories.HouseRepository, logger *slog.Logger) *ScraperService {
	return &ScraperService{
		fetcher: fetcher,
		repo:    repo,
		logger:  logger,
		now:     time.Now,
	}
}

// ScrapeAndStore runs one sync: download the houses table, pick the houses
// that changed, fill in missing details and upsert them in one transaction.
func (s *ScraperService) ScrapeAndStore(ctx context.Context, forceUpdate bool) (Report, error) {
	start := s.now()
	var report Report

	listings, err := s.fetcher.FetchListings(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrListingDownload, err)
	}
	report.Fetched = len(listings)

	updates, err := s.DetectChanges(ctx, listings, forceUpdate)
	if err != nil {
		return report, err
	}
	report.Updates = len(updates)

	if len(updates) == 0 {
		s.logger.Info("Everything up-to-date, nothing to do.")
		report.Elapsed = s.now().Sub(start)
		return report, nil
	}
	s.logger.Info("Found house(s) to be updated.", slog.Int("updates", len(updates)))

	staged := make([]domain.Listing, 0, len(updates))
	for _, house := range updates {
		houseLogger := s.logger.With(slog.Int("id", house.ID), slog.String("name", house.Name))
		houseLogger.Info("Updating house")

		if house.NeedsDetails() {
			details, err := s.fetcher.FetchDetails(ctx, house.ID)
			if err != nil {
				if pylife.IsTimeout(err) {
					houseLogger.Error("Connection timed out, skipping!", slog.Any("error", err))
				} else {
					houseLogger.Error("Could not download house details from user panel, skipping!", slog.Any("error", err))
				}
				report.Skipped++
				continue
			}
			house.ApplyDetails(details)
		}

		staged = append(staged, house)
	}

	s.logger.Info("Saving data to database...", slog.Int("houses", len(staged)))
	if err := s.repo.SaveAll(ctx, staged); err != nil {
		return report, fmt.Errorf("save houses: %w", err)
	}
	report.Saved = len(staged)
	report.Elapsed = s.now().Sub(start)

	s.logger.Info("Done! Job finished.",
		slog.Float64("elapsed_seconds", math.Round(report.Elapsed.Seconds()*100)/100),
		slog.Int("saved", report.Saved), slog.Int("skipped", report.Skipped))
	return report, nil
}

// DetectChanges returns the listings that need an upsert. Without force,
// a stored house qualifies when its owner changed or its stored price is
// zero; houses unknown to the database are skipped.
func (s *ScraperService) DetectChanges(ctx context.Context, listings []domain.Listing, forceUpdate bool) ([]domain.Listing, error) {
	if forceUpdate {
		s.logger.Warn("Force update is enabled, all house details will be updated!")
		return listings, nil
	}

	var updates []domain.Listing
	for _, house := range listings {
		stored, err := s.repo.FindByID(ctx, house.ID)
		if err != nil {
			return nil, fmt.Errorf("look up house %d: %w", house.ID, err)
		}
		if stored == nil {
			s.logger.Warn("House does not exist in database!", slog.Int("id", house.ID), slog.String("name", house.Name))
			continue
		}

		if !stored.SameOwner(house) || (stored.Price != nil && *stored.Price == 0) {
			updates = append(updates, house)
		}
	}
	return updates, nil
}
