package revmap

import (
	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/internal/database"
)

var Module = fx.Module("revmap",
	fx.Provide(
		func(pool *database.Pool) Catalog { return NewTiDBCatalog(pool) },
		NewMetadataCache,
		NewMapper,
	),
)

var _ Querier = (*database.Pool)(nil)
