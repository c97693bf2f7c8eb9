package selector

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	selectedDesc = prometheus.NewDesc(
		"multiversion_site_selected",
		"Implementation selected by a dispatch site (1 for the selected variant). Unresolved indirect sites report nothing.",
		[]string{"site", "variant", "method"}, nil,
	)
	resolutionsDesc = prometheus.NewDesc(
		"multiversion_site_resolutions_total",
		"Number of times an indirect dispatch site ran its selection walk.",
		[]string{"site"}, nil,
	)
)

// Collector exports dispatch site selections as Prometheus metrics.
type Collector struct {
	sources func() []Reporter
}

// NewCollector returns a collector reporting sites. With no sites it reports
// every site in the process registry at collection time.
func NewCollector(sites ...Reporter) *Collector {
	if len(sites) == 0 {
		return &Collector{sources: Sites}
	}
	return &Collector{sources: func() []Reporter { return sites }}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- selectedDesc
	ch <- resolutionsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.sources() {
		st := r.Status()
		if st.Variant != "" {
			ch <- prometheus.MustNewConstMetric(selectedDesc, prometheus.GaugeValue, 1,
				st.Name, st.Variant, st.Method.String())
		}
		ch <- prometheus.MustNewConstMetric(resolutionsDesc, prometheus.CounterValue,
			float64(st.Resolutions), st.Name)
	}
}
