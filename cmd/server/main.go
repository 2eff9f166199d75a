// Package main provides the entry point for the REM query server.
//
// @title REM Query API
// @description Resource/Entity/Moment query engine: LOOKUP, SEARCH, FUZZY,
// @description SQL and TRAVERSE over PostgreSQL or TiDB.
// @host localhost:5300
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Healer-AI/p8fs-sub000/domain/health"
	"github.com/Healer-AI/p8fs-sub000/domain/rem"
	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
	"github.com/Healer-AI/p8fs-sub000/domain/scheduler"
	"github.com/Healer-AI/p8fs-sub000/domain/tracing"
	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/internal/database"
	"github.com/Healer-AI/p8fs-sub000/internal/server"
	"github.com/Healer-AI/p8fs-sub000/pkg/embeddings"
	"github.com/Healer-AI/p8fs-sub000/pkg/kv"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

func main() {
	// .env.local overrides .env; real environment variables win over both
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure
		logger.Module,
		config.Module,
		database.Module,
		kv.Module,
		server.Module,
		tracing.Module,

		embeddings.Module,

		// Domain
		revmap.Module,
		rem.Module,
		health.Module,
		scheduler.Module,
	).Run()
}
