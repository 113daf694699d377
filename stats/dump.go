package stats

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteText gathers every registered metric and writes it in Prometheus's
// text exposition format — the same encoding a /metrics endpoint would
// serve, used here by cmd/bench to print a one-shot summary at the end of
// a run instead of standing up a scrape endpoint (no HTTP server is part
// of this module's scope).
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
