package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Vasu1712/scenyx-live/internal/client"
	"github.com/Vasu1712/scenyx-live/internal/models"
)

func newInfoCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "info <concert-id>",
		Short: "Show a concert, its setlist and live numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := apiClient(v).Concert(cmd.Context(), args[0])
			if errors.Is(err, client.ErrConcertNotFound) {
				return fmt.Errorf("concert %s not found", args[0])
			}
			if err != nil {
				return err
			}
			printDetails(cmd.OutOrStdout(), details)
			return nil
		},
	}
}

func newListCommand(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List concerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			concerts, err := apiClient(v).ListConcerts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(concerts) == 0 {
				fmt.Fprintln(out, "no concerts")
				return nil
			}
			for _, c := range concerts {
				fmt.Fprintf(out, "%s  %s  (%s)\n", c.ID, c.Title, hostName(c))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of concerts to list")
	return cmd
}

func printDetails(w io.Writer, d *models.ConcertDetails) {
	c := d.Concert
	fmt.Fprintf(w, "%s\n", c.Title)
	fmt.Fprintf(w, "hosted by %s\n", hostName(c))
	if c.Description != "" {
		fmt.Fprintf(w, "%s\n", c.Description)
	}
	fmt.Fprintf(w, "listeners: %d\n", d.ActiveListeners)

	counters := make([]string, 0, len(models.ReactionKinds))
	for _, kind := range models.ReactionKinds {
		counters = append(counters, fmt.Sprintf("%s %d", kind, d.ReactionCounters[kind]))
	}
	fmt.Fprintf(w, "reactions: %s\n", strings.Join(counters, ", "))

	if len(c.Setlist) == 0 {
		return
	}
	fmt.Fprintln(w, "setlist:")
	for _, e := range c.Setlist {
		if e.Artist != "" {
			fmt.Fprintf(w, "  %d. %s - %s\n", e.Position, e.Title, e.Artist)
			continue
		}
		fmt.Fprintf(w, "  %d. %s\n", e.Position, e.Title)
	}
}

func hostName(c *models.Concert) string {
	if c.HostDisplayName != "" {
		return c.HostDisplayName
	}
	return c.HostID
}
