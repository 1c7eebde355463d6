// Package app assembles the application: configuration, telemetry, the AI
// provider, the vector index backend, and the question-answering service.
package app

import (
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askcorpus/askcorpus/internal/config"
	"github.com/askcorpus/askcorpus/internal/crawler"
	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
	"github.com/askcorpus/askcorpus/internal/rag"
)

// App is the assembled application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Embedder embed.Embedder
	Index    index.Index
	Service  *rag.Service
	Crawler  *crawler.Crawler

	// DBPool is nil when the memory index backend is selected.
	DBPool *pgxpool.Pool

	otelCleanup func()
	dbCleanup   func()
}

// CrawlerWithBudget returns a crawler with an overridden page budget,
// keeping the configured politeness settings.
func (a *App) CrawlerWithBudget(maxPages int) *crawler.Crawler {
	return crawler.New(crawler.Options{
		MaxPages:    maxPages,
		Parallelism: a.Config.Crawler.Parallelism,
		Delay:       time.Duration(a.Config.Crawler.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(a.Config.Crawler.TimeoutMs) * time.Millisecond,
	}, a.Logger)
}

// Close releases resources in reverse setup order. Safe to call on a
// partially constructed App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Debug("shutting down")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
