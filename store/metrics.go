package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Index-size gauges, labeled per calendar the way cartographus's own
// cache/pool gauges are labeled per pool name rather than collapsed
// into one process-wide number.
var (
	invertedIndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rcal_inverted_index_size",
			Help: "Number of posting-list entries in the inverted index.",
		},
		[]string{"calendar"},
	)

	geoIndexSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rcal_geo_index_size",
			Help: "Number of entries in the geospatial index.",
		},
		[]string{"calendar"},
	)

	eventCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rcal_event_count",
			Help: "Number of events currently held by the calendar store.",
		},
		[]string{"calendar"},
	)
)

// reportSizes refreshes the per-calendar index/event gauges. Called
// after every mutation that can change index or event-count size;
// cheap relative to the mutation it follows since Size/len are O(1).
func (s *Store) reportSizes() {
	invertedIndexSize.WithLabelValues(s.cal.UID).Set(float64(s.inv.Size()))
	geoIndexSize.WithLabelValues(s.cal.UID).Set(float64(s.geo.Size()))
	eventCount.WithLabelValues(s.cal.UID).Set(float64(len(s.cal.Events)))
}
