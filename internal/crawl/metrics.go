package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pointsTotal tracks completed sample points by attempt outcome.
	pointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panocount_points_total",
		Help: "Sample points completed, labeled by outcome.",
	}, []string{"outcome"})
	// panoramasNewTotal tracks panoramas added to the canonical set.
	panoramasNewTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panocount_panoramas_new_total",
		Help: "Distinct panoramas discovered.",
	})
	// panoramasDuplicateTotal tracks sightings of already-known panoramas.
	panoramasDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panocount_panoramas_duplicate_total",
		Help: "Sightings folded into an existing panorama.",
	})
	// panoramasOutsideTotal tracks panoramas rejected by the boundary filter.
	panoramasOutsideTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panocount_panoramas_outside_total",
		Help: "Panoramas found outside the boundary and excluded.",
	})
)
