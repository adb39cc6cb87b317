package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/models"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

var (
	sendRaw  bool
	sendTags bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send JSON-lines tracking events read from stdin",
	Long: `Each input line is a tracking event:

  {"eventName":"purchase","properties":{"value":49,"currency":"EUR"}}

By default events go through the pixel, which prefixes names with "pixel_"
and forwards them to the configured ad platforms: over HTTP when serverTags
credentials are set, otherwise into gtag/fbq buffers that --tags prints. With
--raw they are queued on the delivery client unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		var px *pixel.Pixel
		if !sendRaw {
			px, err = pixel.New(e.cfg.Pixel(), append([]pixel.Option{
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
		}

		logger := xlog.WithComponent("send")
		sent := 0
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for line := 1; scanner.Scan(); line++ {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var ev models.TrackingEvent
			if err := json.Unmarshal([]byte(text), &ev); err != nil {
				logger.Warn().Err(err).Int("line", line).Msg("Skipping malformed event")
				continue
			}
			if px != nil {
				if ev.EventName == "" {
					logger.Warn().Int("line", line).Msg("Skipping event without a name")
					continue
				}
				px.Track(ctx, ev.EventName, ev.Properties)
			} else if err := client.Track(ctx, ev); err != nil {
				logger.Warn().Err(err).Int("line", line).Msg("Event not queued")
				continue
			}
			sent++
		}
		scanErr := scanner.Err()

		if err := client.Close(ctx); err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
		if err := e.saveSession(); err != nil {
			return err
		}
		if scanErr != nil {
			return fmt.Errorf("read stdin: %w", scanErr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d events (session %s)\n", sent, client.SessionID())
		if px != nil && sendTags {
			return writeTagReplay(cmd.OutOrStdout(), px)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "queue events on the delivery client without the pixel")
	sendCmd.Flags().BoolVar(&sendTags, "tags", false, "print the buffered gtag/fbq calls after sending")
	rootCmd.AddCommand(sendCmd)
}
