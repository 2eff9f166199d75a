package kv

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
)

// Module provides the KV Store and RowReader selected by TIKV_PROXY_URL.
var Module = fx.Module("kv",
	fx.Provide(NewStore, NewRowReader),
)

// NewStore returns the proxy-backed store when configured, else an in-memory one.
func NewStore(cfg *config.Config, log *slog.Logger) Store {
	if cfg.KV.UseProxy() {
		log.Info("kv store using TiKV proxy", slog.String("url", cfg.KV.ProxyURL))
		return NewProxyStore(cfg.KV.ProxyURL, cfg.KV.Timeout, log)
	}
	log.Warn("kv store using in-memory backend (TIKV_PROXY_URL not set)")
	return NewMemoryStore()
}

// NewRowReader exposes the store's raw row access when it has one.
func NewRowReader(s Store) RowReader {
	if r, ok := s.(RowReader); ok {
		return r
	}
	return NewMemoryStore()
}
