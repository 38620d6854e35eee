package analytics

import (
	"github.com/tutaviendo/storefront/internal/config"
	"github.com/tutaviendo/storefront/internal/kvstore"
)

// OptionsFromConfig builds store options backed by the configured analytics
// file. logger and sink may be nil.
func OptionsFromConfig(app *config.AppConfig, logger Logger, sink Sink) (Options, error) {
	loc, err := app.Location()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Local:         kvstore.NewFileStore(app.Analytics.StoreFile, app.Analytics.QuotaBytes),
		Logger:        logger,
		Location:      loc,
		Retention:     app.GetRetention(),
		MaxPersisted:  app.Analytics.MaxPersisted,
		QuotaFallback: app.Analytics.QuotaFallback,
		DedupWindow:   app.GetDedupWindow(),
		PruneInterval: app.GetPruneInterval(),
		Sink:          sink,
	}
	return opts, nil
}
