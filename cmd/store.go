package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aaryabookseller16/Recall-Watch/internal/extract"
	"github.com/aaryabookseller16/Recall-Watch/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "recallwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSource() *extract.Client {
	return extract.NewClient(extract.Options{
		BaseURL:           cfg.Source.BaseURL,
		RecallsDataset:    cfg.Source.RecallsDataset,
		ComplaintsDataset: cfg.Source.ComplaintsDataset,
		UserAgent:         cfg.Source.UserAgent,
		PageSize:          cfg.Source.PageSize,
		Timeout:           time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Source.MaxRetries,
		RatePerSec:        cfg.Source.RatePerSec,
	})
}

func sourceWindow() extract.Window {
	return extract.Window{
		Make:  cfg.Source.Make,
		Start: cfg.Source.StartDate,
		End:   cfg.Source.EndDate,
	}
}
