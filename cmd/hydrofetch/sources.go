package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/hydrofetch/internal/adapter/noaa"
	"github.com/couchcryptid/hydrofetch/internal/adapter/usgs"
	"github.com/couchcryptid/hydrofetch/internal/adapter/wqp"
	"github.com/couchcryptid/hydrofetch/internal/catalog"
	"github.com/couchcryptid/hydrofetch/internal/config"
	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/fetch"
	"github.com/couchcryptid/hydrofetch/internal/geo"
	"github.com/couchcryptid/hydrofetch/internal/pipeline"
)

// sourceFactory wires the catalog and requester for each upstream. Catalog
// lookups use their own fetcher so inventory timeouts stay independent of
// data timeouts.
func sourceFactory(cfg *config.Config, catalogFetcher *fetch.Fetcher, logger *slog.Logger) pipeline.SourceFactory {
	return func(run *config.Run) (pipeline.Sources, error) {
		var (
			cat catalog.Catalog
			req pipeline.Requester
		)

		if run.StationsPath != "" {
			stations, err := geo.ReadPoints(run.StationsPath, run.Source)
			if err != nil {
				return pipeline.Sources{}, err
			}
			cat = catalog.NewPointLayer(stations, logger)
		}

		switch run.Source {
		case domain.SourceUSGS:
			if cat == nil {
				cat = usgs.NewInventoryClient(catalogFetcher, cfg.USGSInventoryURL, logger)
			}
			req = usgs.NewRequester(cfg.USGSIVURL, cfg.USGSDVURL)
		case domain.SourceNOAA:
			if cat == nil {
				return pipeline.Sources{}, errors.New("noaa runs need a stations point layer")
			}
			req = noaa.NewRequester(cfg.NOAAURL)
		case domain.SourceEPA:
			if cat == nil {
				cat = wqp.NewStationClient(catalogFetcher, cfg.WQPURL, run.Options, run.Window, logger)
			}
			req = wqp.NewRequester(cfg.WQPURL)
		default:
			return pipeline.Sources{}, fmt.Errorf("unknown source %q", run.Source)
		}

		return pipeline.Sources{Catalog: cat, Requester: req}, nil
	}
}

// dataTimeout is the per-request timeout for station data. Water quality
// result exports are large and slow to assemble upstream.
func dataTimeout(cfg *config.Config, src domain.Source) fetch.Options {
	timeout := cfg.FetchTimeout
	if src == domain.SourceEPA {
		timeout = cfg.WQPTimeout
	}
	return fetch.Options{
		Timeout:   timeout,
		Attempts:  cfg.FetchAttempts,
		Delay:     cfg.RetryDelay,
		UserAgent: cfg.UserAgent,
	}
}
