package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const (
	eventsFamily = "aero_webrtc_pairing_events_total"
	gaugeFamily  = "aero_webrtc_pairing_participants"
)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// GaugeFunc reports point-in-time values keyed by label (e.g. "queued").
type GaugeFunc func() map[string]int

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// Counters are exported as one family with an `event` label. When gauges is
// non-nil its values are exported as a second family with a `state` label.
func PrometheusHandler(m *Metrics, gauges GaugeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := lo.Keys(snap)
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Internal event counters.\n", eventsFamily)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", eventsFamily)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", eventsFamily, labelEscaper.Replace(k), snap[k])
		}

		if gauges == nil {
			return
		}
		values := gauges()
		states := lo.Keys(values)
		sort.Strings(states)

		_, _ = fmt.Fprintf(w, "# HELP %s Participants by matchmaking state.\n", gaugeFamily)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", gaugeFamily)
		for _, s := range states {
			_, _ = fmt.Fprintf(w, "%s{state=\"%s\"} %d\n", gaugeFamily, labelEscaper.Replace(s), values[s])
		}
	})
}
