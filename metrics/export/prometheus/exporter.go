package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/metrics/export/internaldefs"
)

// MetricsSource supplies the values an exporter renders.
type MetricsSource interface {
	MetricsSnapshot() otpflow.MetricsSnapshot
	TelemetryDropped() uint64
}

// PrometheusExporter renders flow metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source MetricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [otpflow.Controller].
func NewPrometheusExporter(ctrl *otpflow.Controller) *PrometheusExporter {
	return &PrometheusExporter{source: ctrl}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any
// value exposing MetricsSnapshot and TelemetryDropped, such as an aggregate
// over several controllers.
func NewPrometheusExporterFromSource(source MetricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
// It returns an empty string while the source has nothing recorded.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.TelemetryDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)
	for _, f := range collect(snapshot, dropped) {
		f.write(&b)
	}
	return b.String()
}

type sample struct {
	suffix string
	label  string
	value  string
}

type family struct {
	name    string
	help    string
	kind    string
	samples []sample
}

func collect(snapshot otpflow.MetricsSnapshot, dropped uint64) []family {
	families := make([]family, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)+2)

	for _, def := range internaldefs.CounterDefs {
		families = append(families, counter(def.Name, def.Help, snapshot.Counters[def.ID]))
	}

	errs := family{name: internaldefs.ErrorsName, help: internaldefs.ErrorsHelp, kind: "counter"}
	for _, k := range internaldefs.ErrorKinds {
		errs.samples = append(errs.samples, sample{
			label: internaldefs.ErrorKindLabel + "=" + strconv.Quote(k.String()),
			value: strconv.FormatUint(snapshot.Errors[k], 10),
		})
	}
	families = append(families, errs)

	les := internaldefs.BucketLabels()
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[def.ID])
		h := family{name: def.Name, help: def.Help, kind: "histogram"}
		for i, le := range les {
			h.samples = append(h.samples, sample{
				suffix: "_bucket",
				label:  "le=" + strconv.Quote(le),
				value:  strconv.FormatUint(cumulative[i], 10),
			})
		}
		h.samples = append(h.samples,
			sample{suffix: "_sum", value: seconds(snapshot.HistogramSum[def.ID])},
			sample{suffix: "_count", value: strconv.FormatUint(cumulative[len(cumulative)-1], 10)},
		)
		families = append(families, h)
	}

	return append(families, counter(internaldefs.TelemetryDroppedName, internaldefs.TelemetryDroppedHelp, dropped))
}

func counter(name, help string, v uint64) family {
	return family{
		name:    name,
		help:    help,
		kind:    "counter",
		samples: []sample{{value: strconv.FormatUint(v, 10)}},
	}
}

func (f family) write(b *strings.Builder) {
	b.WriteString("# HELP " + f.name + " " + escapeHelp(f.help) + "\n")
	b.WriteString("# TYPE " + f.name + " " + f.kind + "\n")
	for _, s := range f.samples {
		b.WriteString(f.name)
		b.WriteString(s.suffix)
		if s.label != "" {
			b.WriteString("{" + s.label + "}")
		}
		b.WriteByte(' ')
		b.WriteString(s.value)
		b.WriteByte('\n')
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
