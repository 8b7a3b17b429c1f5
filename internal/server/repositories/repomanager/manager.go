package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
}
