package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url2pdf_conversions_total",
			Help: "Total number of conversions by response mode and result",
		},
		[]string{"mode", "result"},
	)

	renderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "url2pdf_render_duration_seconds",
			Help:    "Time spent rendering a page to PDF",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"mode"},
	)

	pdfSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "url2pdf_pdf_size_bytes",
			Help:    "Size of generated PDFs",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)
)
