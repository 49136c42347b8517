package cli

import (
	"github.com/lucasnoah/autofix/internal/db"
)

// lookupRun resolves a run from positional args: explicit ID when given,
// the latest run otherwise. Returns nil when no runs exist.
func lookupRun(database *db.DB, args []string) (*db.RunRecord, error) {
	if len(args) == 1 {
		return database.GetRun(args[0])
	}
	return database.LatestRun()
}
