package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteOrphans bool

var orphansCmd = &cobra.Command{
	Use:   "orphans <collection>",
	Short: "Find documents nothing references",
	Long: `Report the documents of a collection that no other document references.
With --delete they are removed, unless --dry-run is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runOrphans,
}

var checkCmd = &cobra.Command{
	Use:   "check <collection>",
	Short: "Report references to missing documents",
	Long:  "Report references to documents of a collection that do not exist, and documents nothing references. Nothing is written.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	orphansCmd.Flags().BoolVar(&deleteOrphans, "delete", false, "delete the documents found")
}

func runOrphans(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	result := s.api.Orphans(cmd.Context(), args[0], deleteOrphans)
	s.close()

	handleResult(result)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	result := s.api.Check(cmd.Context(), args[0])
	s.close()

	handleResult(result)
	return nil
}
