package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http/cookiejar"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"

	"github.com/vincentbai/lynk-embed/internal/clock"
	"github.com/vincentbai/lynk-embed/internal/config"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/pixel"
	"github.com/vincentbai/lynk-embed/internal/session"
)

var (
	scanInit    bool
	scanBaseURL string
)

var scanCmd = &cobra.Command{
	Use:   "scan [page.html]",
	Short: "Find Lynk embed script tags in an HTML page",
	Long: `scan lists every <script data-academy-id ...> tag in a host page (a file
or stdin). With --init it starts a pixel for each tag the way the embed does on
page load, sharing one fresh cookie jar scoped to --url, delivers the resulting
page view and prints the tag snippets the page would replay.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		tags, err := config.ParseScriptTags(in)
		if err != nil {
			if !errors.Is(err, config.ErrMissingCredentials) {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACADEMY\tTYPE\tSELECTOR\tGOOGLE\tGA4\tFACEBOOK")
		for _, t := range tags {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.AcademyID, t.Type, t.Selector, t.GooglePixel, t.GA4ID, t.FacebookPixel)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if !scanInit || len(tags) == 0 {
			return nil
		}

		xlog.Configure(xlog.Config{Service: "lynk-track"})
		u, err := url.Parse(pageURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("--url %q is not an absolute URL", pageURL)
		}
		// A fresh browser visiting the page: cookies are scoped to the site
		// and shared by every tag on it.
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return err
		}
		store := session.NewJarStore(jar, u)
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		clk := clock.Real{}
		host := page.Static{URL: pageURL, UserAgent: userAgent}
		for _, t := range tags {
			cfg := t.Pixel()
			cfg.APIBaseURL = scanBaseURL
			client, err := lynkapi.New(lynkapi.Config{
				AcademyID:  cfg.AcademyID,
				APIKey:     cfg.APIKey,
				APIBaseURL: cfg.APIBaseURL,
				Debug:      cfg.Debug,
			}, lynkapi.WithClock(clk), lynkapi.WithSessionStore(store), lynkapi.WithPage(host))
			if err != nil {
				return err
			}
			px, err := pixel.New(cfg,
				pixel.WithTracker(client),
				pixel.WithPage(host),
				pixel.WithSessionStore(store),
				pixel.WithClock(clk))
			if err != nil {
				client.Destroy()
				return err
			}
			px.Init(ctx)
			if err := client.Close(ctx); err != nil {
				return fmt.Errorf("final flush for %s: %w", t.AcademyID, err)
			}

			fmt.Fprintf(out, "\n<!-- %s session %s -->\n", t.AcademyID, client.SessionID())
			if err := writeTagReplay(out, px); err != nil {
				return err
			}
		}
		return nil
	},
}

// writeTagReplay prints the gtag/fbq calls a pixel buffered, as a page
// would replay them into the browser tag libraries.
func writeTagReplay(w io.Writer, px *pixel.Pixel) error {
	for _, tag := range []pixel.Tag{px.Gtag(), px.Fbq()} {
		if dl, ok := tag.(*pixel.DataLayer); ok && len(dl.Commands()) > 0 {
			if err := dl.Script(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	scanCmd.Flags().BoolVar(&scanInit, "init", false, "start a pixel for each tag and send its page view")
	scanCmd.Flags().StringVar(&scanBaseURL, "api-base-url", lynkapi.DefaultBaseURL, "collector used by --init (tags carry no endpoint)")
	rootCmd.AddCommand(scanCmd)
}
