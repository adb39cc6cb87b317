package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vincentbai/lynk-embed/internal/booking"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
)

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the academy's bookable batches and today's appointment slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		w, err := booking.New(e.cfg.Booking(),
			booking.WithClock(e.clock),
			booking.WithClientOptions(lynkapi.WithSessionStore(e.jar), lynkapi.WithPage(e.page)))
		if err != nil {
			return err
		}
		defer w.Destroy()

		w.Init(ctx)
		opts, err := w.LoadOptions(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", booking.FailureMessage, err)
		}

		out := cmd.OutOrStdout()
		if catalogJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Batches any `json:"batches"`
				Slots   any `json:"slots"`
			}{opts.Batches, opts.Slots})
		}

		if academy := w.AcademyConfig(); academy != nil {
			fmt.Fprintf(out, "%s\n\n", academy.Academy.Name)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if len(opts.Batches) > 0 {
			fmt.Fprintln(tw, "BATCH\tNAME\tSCHEDULE\tPRICE\tSPOTS")
			for _, b := range opts.Batches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f %s\t%d\n", b.ID, b.Name, b.Schedule, b.Price, b.Currency, b.AvailableSpots)
			}
			fmt.Fprintln(tw)
		}
		now := e.clock.Now()
		for _, group := range booking.GroupSlotsByDate(opts.Slots) {
			fmt.Fprintf(tw, "%s\n", booking.FormatDate(group.Date, now))
			for _, s := range group.Slots {
				fmt.Fprintf(tw, "  %s\t%s\t%d min\t%s\n", s.ID, s.Time, s.Duration, s.CoachName)
			}
		}
		if len(opts.Batches) == 0 && len(opts.Slots) == 0 {
			fmt.Fprintln(tw, "Nothing available to book.")
		}
		return tw.Flush()
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(catalogCmd)
}
