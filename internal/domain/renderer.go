package domain

import (
	"context"
	"time"
)

// WaitCondition tells the renderer when a page counts as loaded.
type WaitCondition string

const (
	WaitNetworkIdle WaitCondition = "network-idle"
	WaitLoad        WaitCondition = "load"
)

// Valid reports whether w is a known wait condition.
func (w WaitCondition) Valid() bool {
	return w == WaitNetworkIdle || w == WaitLoad
}

// PDFOptions controls the printed output. Paper sizes are in inches.
type PDFOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	FullPage        bool
	PrintBackground bool
	Margins         Margins
	Scale           float64
}

// RenderRequest is everything a Renderer needs to produce one PDF.
type RenderRequest struct {
	URL           string
	Viewport      Viewport
	WaitCondition WaitCondition
	Timeout       time.Duration
	SettleDelay   time.Duration
	PDF           PDFOptions
}

// RenderSettings are the service-wide rendering defaults.
type RenderSettings struct {
	WaitCondition   WaitCondition
	Timeout         time.Duration
	SettleDelay     time.Duration
	PaperWidth      float64
	PaperHeight     float64
	FullPage        bool
	PrintBackground bool
}

// Renderer loads a page in a headless browser and prints it to PDF.
// Implementations release their browser resources before returning.
type Renderer interface {
	RenderPageToPDF(ctx context.Context, req RenderRequest) ([]byte, error)
}

// RenderRequest combines the normalized options with the service settings.
func (o ConversionOptions) RenderRequest(s RenderSettings) RenderRequest {
	return RenderRequest{
		URL:           o.URL,
		Viewport:      o.Viewport,
		WaitCondition: s.WaitCondition,
		Timeout:       s.Timeout,
		SettleDelay:   s.SettleDelay,
		PDF: PDFOptions{
			PaperWidth:      s.PaperWidth,
			PaperHeight:     s.PaperHeight,
			FullPage:        s.FullPage,
			PrintBackground: s.PrintBackground,
			Margins:         o.Margins,
			Scale:           o.Scale,
		},
	}
}
