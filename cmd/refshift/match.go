package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/refshift/migration"
)

var (
	otherDB  string
	useIndex bool
)

var matchUsersCmd = &cobra.Command{
	Use:   "match-users",
	Short: "Give users the ids they have in another database",
	Long: `Match users of --db against the users of --other-db by email and rewrite
the ids of matched users, and every reference to them, to the ids they have in
--other-db. The two databases must not share any user id in the --db range, and
an email matching several users of --other-db aborts the run.`,
	Args: cobra.NoArgs,
	RunE: runMatchUsers,
}

func init() {
	matchUsersCmd.Flags().StringVar(&otherDB, "other-db", "", "database holding the canonical users (required)")
	matchUsersCmd.Flags().BoolVar(&useIndex, "index", false, "load the other users once instead of querying per user")
	_ = matchUsersCmd.MarkFlagRequired("other-db")
}

func runMatchUsers(cmd *cobra.Command, args []string) error {
	if otherDB == cfg.DB {
		return fmt.Errorf("--other-db must differ from --db")
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	other := s.store.Database(otherDB)
	result := s.api.MatchUsers(cmd.Context(), other, migration.MatchOptions{Index: useIndex})
	log.Infow("Closing connection", "database", otherDB)
	s.close()

	handleResult(result)
	return nil
}
