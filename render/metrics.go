// seehuhn.de/go/exammark - mark up and export scanned exam PDFs
// Copyright (C) 2026  The exammark authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects statistics about the page cache.  A nil *Metrics
// discards all observations.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	Rasterizations prometheus.Counter
	StaleRenders   prometheus.Counter
	Loads          *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.  If reg is
// nil, the default registry is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "exammark_page_cache_hits_total",
			Help: "Number of page requests served from the bitmap cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "exammark_page_cache_misses_total",
			Help: "Number of page requests which required rendering",
		}),
		Rasterizations: f.NewCounter(prometheus.CounterOpts{
			Name: "exammark_rasterizations_total",
			Help: "Number of pages rasterized",
		}),
		StaleRenders: f.NewCounter(prometheus.CounterOpts{
			Name: "exammark_stale_renders_total",
			Help: "Number of renders discarded because a newer page was requested",
		}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exammark_document_loads_total",
			Help: "Number of document loads by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) hit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) miss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) rasterized() {
	if m == nil {
		return
	}
	m.Rasterizations.Inc()
}

func (m *Metrics) stale() {
	if m == nil {
		return
	}
	m.StaleRenders.Inc()
}

func (m *Metrics) loaded(outcome string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
}
