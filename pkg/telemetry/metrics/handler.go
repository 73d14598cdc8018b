package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry in the Prometheus exposition
// format, or OpenMetrics when the scraper asks for it. A collector that
// fails mid-scrape does not hide the rest.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
		ErrorLog:          slogAdapter{c.logger},
	})
}

// slogAdapter lets promhttp report scrape errors through slog.
type slogAdapter struct{ logger *slog.Logger }

func (a slogAdapter) Println(v ...any) {
	a.logger.Error("metrics scrape error", "error", fmt.Sprint(v...))
}
