package chrome

import (
	"fmt"

	"github.com/chromedp/cdproto/page"

	"url2pdf/internal/domain"
)

// buildPrintToPDFParams converts the PDF options into DevTools print
// parameters. Margins are CSS lengths and are converted to inches.
func buildPrintToPDFParams(opts domain.PDFOptions) (*page.PrintToPDFParams, error) {
	top, err := domain.LengthInches(opts.Margins.Top)
	if err != nil {
		return nil, fmt.Errorf("margin top: %w", err)
	}
	right, err := domain.LengthInches(opts.Margins.Right)
	if err != nil {
		return nil, fmt.Errorf("margin right: %w", err)
	}
	bottom, err := domain.LengthInches(opts.Margins.Bottom)
	if err != nil {
		return nil, fmt.Errorf("margin bottom: %w", err)
	}
	left, err := domain.LengthInches(opts.Margins.Left)
	if err != nil {
		return nil, fmt.Errorf("margin left: %w", err)
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	params := page.PrintToPDF().
		WithPrintBackground(opts.PrintBackground).
		WithPaperWidth(opts.PaperWidth).
		WithPaperHeight(opts.PaperHeight).
		WithMarginTop(top).
		WithMarginRight(right).
		WithMarginBottom(bottom).
		WithMarginLeft(left).
		WithScale(scale)
	if !opts.FullPage {
		params = params.WithPageRanges("1")
	}
	return params, nil
}
