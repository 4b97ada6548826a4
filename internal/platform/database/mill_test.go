package database_test

import (
	"github.com/jackc/pgx/v5"
	"github.com/millerp/millerp/internal/platform/database"
)

var (
	_ database.Querier = (*database.Pool)(nil)
	_ database.Querier = (pgx.Tx)(nil)
)
