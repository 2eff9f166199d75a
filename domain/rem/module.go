package rem

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/domain/revmap"
	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/internal/database"
	"github.com/Healer-AI/p8fs-sub000/pkg/embeddings"
	"github.com/Healer-AI/p8fs-sub000/pkg/kv"
)

// Module provides REM query dependencies via fx
var Module = fx.Module("rem",
	fx.Provide(
		NewBackend,
		NewTraverserFromConfig,
		NewExecutorFromConfig,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes, RegisterCacheMetrics),
)

// BackendParams are the dependencies for selecting a backend
type BackendParams struct {
	fx.In

	Config     *config.Config
	Pool       *database.Pool
	Mapper     *revmap.Mapper
	Rows       kv.RowReader
	Embeddings *embeddings.Service
	Log        *slog.Logger
}

// NewBackend returns the backend named by REM_BACKEND.
func NewBackend(p BackendParams) Backend {
	if p.Config.REM.UseTiDB() {
		p.Log.Info("rem backend: tidb with kv reverse mapping")
		return NewTiDBBackend(p.Pool, p.Mapper, p.Rows, p.Embeddings, p.Log)
	}
	p.Log.Info("rem backend: postgresql graph functions")
	return NewPostgresBackend(p.Pool, p.Embeddings, p.Log)
}

// NewTraverserFromConfig builds the traverser from REM settings.
func NewTraverserFromConfig(backend Backend, cfg *config.Config, log *slog.Logger) *Traverser {
	return NewTraverser(backend, TraverserConfig{
		SeedLimit:       cfg.REM.SeedLimit,
		EdgeSampleLimit: cfg.REM.EdgeSampleLimit,
		Timeout:         cfg.REM.TraverseTimeout,
	}, log)
}

// NewExecutorFromConfig builds the executor with the default tenant.
func NewExecutorFromConfig(backend Backend, traverser *Traverser, cfg *config.Config, log *slog.Logger) *Executor {
	return NewExecutor(backend, traverser, cfg.REM.DefaultTenant, log)
}

var (
	_ Querier      = (*database.Pool)(nil)
	_ NameResolver = (*revmap.Mapper)(nil)
	_ Embedder     = (*embeddings.Service)(nil)
)
