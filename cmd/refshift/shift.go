package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var offset int64

var shiftIDsCmd = &cobra.Command{
	Use:   "shift-ids <collection>",
	Short: "Add an offset to every id of a collection",
	Long: `Add --offset to the ids of a collection and rewrite every reference to them.
References are rewritten before the collection itself, and nothing is written
when any id would become non-positive or collide with another.`,
	Args: cobra.ExactArgs(1),
	RunE: runShiftIDs,
}

func init() {
	shiftIDsCmd.Flags().Int64Var(&offset, "offset", 0, "value added to every id (required)")
	_ = shiftIDsCmd.MarkFlagRequired("offset")
}

func runShiftIDs(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	result := s.api.ShiftIDs(cmd.Context(), args[0], offset)
	s.close()

	handleResult(result)
	return nil
}
