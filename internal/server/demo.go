package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vincentbai/lynk-embed/internal/lynkapi"
	"github.com/vincentbai/lynk-embed/internal/page"
	"github.com/vincentbai/lynk-embed/internal/pixel"
	"github.com/vincentbai/lynk-embed/internal/session"
)

var demoPage = template.Must(template.New("demo").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
{{- if .Gtag}}
<script>
window.dataLayer = window.dataLayer || [];
function gtag(){dataLayer.push(arguments);}
{{.Gtag}}</script>
{{- end}}
{{- if .Fbq}}
<script>
{{.Fbq}}</script>
{{- end}}
</head>
<body>
<h1>{{.Name}}</h1>
<div id="lynk-button"></div>
<script src="/embed.js" data-academy-id="{{.AcademyID}}" data-api-key="{{.APIKey}}"{{with .Pixels.Google}} data-google-pixel="{{.}}"{{end}}{{with .Pixels.GoogleAnalytics}} data-ga4-id="{{.}}"{{end}}{{with .Pixels.Facebook}} data-facebook-pixel="{{.}}"{{end}}></script>
</body>
</html>
`))

type demoData struct {
	Name      string
	AcademyID string
	APIKey    string
	Pixels    pixel.Pixels
	Gtag      template.JS
	Fbq       template.JS
}

// handleDemoPage renders a host page for an academy with the pixel run
// server-side: cookies go through the request and response, the page view
// is delivered to this collector, and the buffered tag calls are inlined.
func (s *Server) handleDemoPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	academyID := chi.URLParam(r, "academyID")
	cfg, err := s.db.AcademyConfig(ctx, academyID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	data := demoData{Name: cfg.Academy.Name, AcademyID: academyID, APIKey: s.demoKey()}
	if cfg.Pixel != nil {
		data.Pixels = pixel.Pixels{
			Google:          cfg.Pixel.GoogleAdsID,
			GoogleAnalytics: cfg.Pixel.GoogleAnalyticsID,
			Facebook:        cfg.Pixel.FacebookPixelID,
		}
	}

	pc := page.FromRequest(r)
	pc.Title = cfg.Academy.Name
	host := page.Static(pc)
	store := session.NewRequestStore(w, r)

	client, err := lynkapi.New(lynkapi.Config{
		AcademyID:  academyID,
		APIKey:     data.APIKey,
		APIBaseURL: s.publicURL + "/v1",
	}, lynkapi.WithHTTPClient(s.selfClient), lynkapi.WithPage(host), lynkapi.WithSessionStore(store))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create demo client")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	gtag, fbq := pixel.NewDataLayer("gtag"), pixel.NewDataLayer("fbq")
	px, err := pixel.New(pixel.Config{AcademyID: academyID, Pixels: data.Pixels},
		pixel.WithTracker(client), pixel.WithPage(host), pixel.WithSessionStore(store),
		pixel.WithGtag(gtag), pixel.WithFbq(fbq))
	if err != nil {
		client.Destroy()
		s.logger.Error().Err(err).Msg("Failed to create demo pixel")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	px.Init(ctx)
	if err := client.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Demo page events not delivered")
	}

	var buf bytes.Buffer
	if err := gtag.Script(&buf); err == nil {
		data.Gtag = template.JS(buf.String())
	}
	buf.Reset()
	if err := fbq.Script(&buf); err == nil {
		data.Fbq = template.JS(buf.String())
	}

	var out bytes.Buffer
	if err := demoPage.Execute(&out, data); err != nil {
		s.logger.Error().Err(err).Msg("Demo template execution failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out.Bytes())
}

// demoKey is the API key the demo page embeds.
func (s *Server) demoKey() string {
	if len(s.apiKeys) > 0 {
		return s.apiKeys[0]
	}
	return "demo"
}
