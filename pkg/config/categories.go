package config

import (
	"context"

	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/categories"
	"github.com/sudorandom/flowscope/pkg/sources"
	"github.com/sudorandom/flowscope/pkg/utils"
)

// Open builds the category store. Mappings load in order: reserved blocks,
// registry countries, cloud ranges, then the data API's site mapping, so a
// site's own categories replace broader ones for the same prefix. Feeds that
// fail are logged and skipped; only a store that cannot be opened is an error.
func (c Categories) Open(ctx context.Context, api *sources.Client, log *zap.SugaredLogger) (*categories.Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts := []categories.Option{categories.WithLogger(log)}
	if c.GeoIPPath != "" {
		geo, err := categories.OpenGeoIP(c.GeoIPPath)
		if err != nil {
			log.Warnf("GeoIP disabled: %v", err)
		} else {
			opts = append(opts, categories.WithGeoIP(geo))
		}
	}
	store, err := categories.Open(c.StorePath, opts...)
	if err != nil {
		return nil, err
	}

	load := func(name string, mapping map[string][]string) {
		if _, err := store.Load(mapping); err != nil {
			log.Warnf("Error loading %s categories: %v", name, err)
		}
	}
	if c.Reserved {
		load("reserved", categories.Reserved)
	}

	fetcher := utils.NewFetcher(c.CacheDir, log)
	if c.RIR {
		mapping, err := categories.FetchDelegated(ctx, fetcher)
		if err != nil {
			log.Warnf("Some registries could not be loaded: %v", err)
		}
		load("registry", mapping)
	}
	if c.Cloud {
		ranges, err := categories.FetchCloudRanges(ctx, fetcher, categories.DefaultCloudFeeds, log)
		if err != nil {
			log.Warnf("Some cloud ranges could not be loaded: %v", err)
		}
		load("cloud", categories.CloudCategories(ranges))
	}
	if api != nil {
		mapping, err := api.FetchAddressCategories(ctx)
		if err != nil {
			log.Warnf("Error fetching address categories: %v", err)
		} else {
			load("site", mapping)
		}
	}
	return store, nil
}

// Watchlist builds the term matcher for Watch.
func (c Categories) Watchlist() *categories.Watchlist {
	return categories.NewWatchlist(c.Watch)
}
