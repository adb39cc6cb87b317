package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vincentbai/lynk-embed/internal/booking"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

var (
	bookBatch   string
	bookSlot    string
	bookName    string
	bookPhone   string
	bookEmail   string
	bookDetails map[string]string
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book a batch or an appointment slot and report the conversion",
	Example: `  lynk-track book --batch batch-1 --name "Ana" --phone 5550100 --email ana@example.com
  lynk-track book --slot apt-2026-10-18-1 --name "Ana" --phone 5550100 --detail level=beginner`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (bookBatch == "") == (bookSlot == "") {
			return errors.New("exactly one of --batch or --slot is required")
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		client, err := lynkapi.New(e.cfg.Client(),
			lynkapi.WithClock(e.clock),
			lynkapi.WithSessionStore(e.jar),
			lynkapi.WithPage(e.page))
		if err != nil {
			return err
		}
		px, err := pixel.New(e.cfg.Pixel(), append([]pixel.Option{
			pixel.WithTracker(client),
			pixel.WithPage(e.page),
			pixel.WithSessionStore(e.jar),
			pixel.WithClock(e.clock),
		}, e.cfg.PixelTags(e.page, client.SessionID)...)...)
		if err != nil {
			client.Destroy()
			return err
		}
		px.Init(ctx)

		cfg := e.cfg.Booking()
		switch {
		case bookBatch != "":
			cfg.Type = booking.TypeBooking
		default:
			cfg.Type = booking.TypeAppointment
		}
		w, err := booking.New(cfg,
			booking.WithAPI(client),
			booking.WithConversionTracker(px),
			booking.WithClock(e.clock))
		if err != nil {
			client.Destroy()
			return err
		}

		opts, err := w.LoadOptions(ctx)
		if err != nil {
			client.Destroy()
			return fmt.Errorf("%s: %w", booking.FailureMessage, err)
		}
		var sel booking.Selection
		for i := range opts.Batches {
			if opts.Batches[i].ID == bookBatch {
				sel.Batch = &opts.Batches[i]
			}
		}
		for i := range opts.Slots {
			if opts.Slots[i].ID == bookSlot {
				sel.Slot = &opts.Slots[i]
			}
		}
		if sel.Batch == nil && sel.Slot == nil {
			client.Destroy()
			return fmt.Errorf("%q is not available to book", bookBatch+bookSlot)
		}

		b, err := w.Submit(ctx, sel, booking.Form{
			Name:    bookName,
			Phone:   bookPhone,
			Email:   bookEmail,
			Details: bookDetails,
		})
		if closeErr := client.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("final flush: %w", closeErr)
		}
		if saveErr := e.saveSession(); saveErr != nil && err == nil {
			err = saveErr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nbooking %s (%s)\n", w.SuccessMessage(), b.ID, b.Status)
		return nil
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookBatch, "batch", "", "batch id to book")
	bookCmd.Flags().StringVar(&bookSlot, "slot", "", "appointment slot id to book (today's slots only)")
	bookCmd.Flags().StringVar(&bookName, "name", "", "customer name")
	bookCmd.Flags().StringVar(&bookPhone, "phone", "", "customer phone")
	bookCmd.Flags().StringVar(&bookEmail, "email", "", "customer email")
	bookCmd.Flags().StringToStringVar(&bookDetails, "detail", nil, "extra form field as key=value (repeatable)")
	_ = bookCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(bookCmd)
}
