package main

import (
	"proxysheet/internal/cache"
	"proxysheet/internal/fetch"
	"proxysheet/internal/printer"
	"proxysheet/internal/render"
	u "proxysheet/internal/utils"
)

type services struct {
	cache   *cache.Store
	pool    *render.Pool
	printer *printer.Printer
}

// buildServices wires the print pipeline against the Scryfall API.
func buildServices(cfg u.Config) *services {
	store := cache.New()
	src := fetch.NewScryfallSource(cfg.Fetch.BaseURL, cfg.Fetch.UserAgent, cfg.Fetch.Timeout, cfg.Fetch.MaxImageBytes)
	f := fetch.New(store, src, fetch.Options{
		MinInterval: cfg.Fetch.MinInterval,
		TTL:         cfg.Cache.ImageTTL,
	})
	pool := render.NewPool(cfg.Render.Workers)
	return &services{
		cache:   store,
		pool:    pool,
		printer: printer.New(store, f, pool, cfg.Render.CompressionLevel),
	}
}
