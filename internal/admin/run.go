package admin

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
)

// Seams for tests.
var (
	sqlOpen        = sql.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

// Run executes "vaultadmin <command> [config flags]". args excludes the
// program name. Configuration is loaded the same way the server loads it.
func Run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		Usage(out)
		return nil
	}
	command := args[0]

	cfg, err := config.Load(args[1:], os.LookupEnv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := sqlOpen("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	return NewCLI(services.NewUserService(db, rm, cfg), in, out).Dispatch(ctx, command)
}
