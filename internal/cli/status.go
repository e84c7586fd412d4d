package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the chunk indices stored for one stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus()
		},
	}

	cmd.Flags().String(streamKey, "", "stream id to inspect")
	a.v.BindPFlag(streamKey, cmd.Flags().Lookup(streamKey))
	return cmd
}

func (a *app) runStatus() error {
	streamID := a.v.GetString(streamKey)
	if streamID == "" {
		return errors.New("--stream is required")
	}

	store, err := a.store()
	if err != nil {
		return err
	}
	indices, err := store.Indices(streamID)
	if err != nil {
		return err
	}

	if len(indices) == 0 {
		fmt.Fprintf(a.out, "%s: no chunks\n", streamID)
		return nil
	}

	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	fmt.Fprintf(a.out, "%s: %d chunks, latest %d\n", streamID, len(indices), indices[len(indices)-1])
	fmt.Fprintf(a.out, "indices: %s\n", strings.Join(parts, " "))
	return nil
}
