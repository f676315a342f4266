package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filepin/internal/dbx"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
	"github.com/dmitrijs2005/filepin/internal/server/uploads"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Objects(db dbx.DBTX) objects.Repository
	Uploads(db dbx.DBTX) uploads.Repository
}
