package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	neturl "net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinScalePercent = 10
	MaxScalePercent = 200

	defaultMargin = "0px"
	defaultScale  = 1.0
)

var (
	lengthPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)\s*$`)
	// schemePattern matches an explicit scheme at the start of a URL.
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// FlexString holds a request field that clients send either as a JSON string,
// a JSON number or, for viewport, a JSON object. The raw text is kept and
// interpreted during normalization.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	default:
		*f = FlexString(data)
	}
	return nil
}

// ConversionRequest is the raw input of a conversion, as received from a client.
type ConversionRequest struct {
	URL          string     `json:"url"`
	Viewport     FlexString `json:"viewport"`
	MarginTop    FlexString `json:"marginTop"`
	MarginRight  FlexString `json:"marginRight"`
	MarginBottom FlexString `json:"marginBottom"`
	MarginLeft   FlexString `json:"marginLeft"`
	Scale        FlexString `json:"scale"`
}

// Viewport is the browser window size used while loading the page.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Margins are CSS lengths such as "10px" or "1.5cm".
type Margins struct {
	Top    string
	Right  string
	Bottom string
	Left   string
}

// ConversionOptions is a validated, normalized ConversionRequest.
type ConversionOptions struct {
	URL      string
	Host     string
	Viewport Viewport
	Margins  Margins
	Scale    float64
}

// Normalize validates the request and applies defaults. All failures are
// validation errors.
func (r ConversionRequest) Normalize(defaultViewport Viewport) (ConversionOptions, error) {
	target, err := NormalizeURL(r.URL)
	if err != nil {
		return ConversionOptions{}, err
	}

	scale, err := ParseScale(string(r.Scale))
	if err != nil {
		return ConversionOptions{}, err
	}

	viewport, err := ParseViewport(string(r.Viewport), defaultViewport)
	if err != nil {
		return ConversionOptions{}, err
	}

	var margins Margins
	for _, m := range []struct {
		name string
		raw  FlexString
		dst  *string
	}{
		{"marginTop", r.MarginTop, &margins.Top},
		{"marginRight", r.MarginRight, &margins.Right},
		{"marginBottom", r.MarginBottom, &margins.Bottom},
		{"marginLeft", r.MarginLeft, &margins.Left},
	} {
		v, err := NormalizeLength(string(m.raw))
		if err != nil {
			return ConversionOptions{}, ValidationError(fmt.Sprintf("Invalid %s: %s", m.name, err.Error()))
		}
		*m.dst = v
	}

	return ConversionOptions{
		URL:      target.String(),
		Host:     target.Hostname(),
		Viewport: viewport,
		Margins:  margins,
		Scale:    scale,
	}, nil
}

// NormalizeURL applies the default http:// scheme when none is given and
// checks that the result is an absolute http(s) URL.
func NormalizeURL(raw string) (*neturl.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ValidationError("URL is required")
	}
	if !schemePattern.MatchString(raw) {
		raw = "http://" + raw
	}

	parsed, err := neturl.Parse(raw)
	if err != nil || parsed.Host == "" || parsed.Hostname() == "" {
		return nil, ValidationError("Invalid URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ValidationError("Invalid URL: must be HTTP or HTTPS")
	}
	return parsed, nil
}

// ParseScale converts a percentage into a PDF scale multiplier. An empty value
// yields the default multiplier of 1.0.
func ParseScale(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultScale, nil
	}
	percent, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, ValidationError("Invalid scale: must be a number")
	}
	if math.IsNaN(percent) || percent < MinScalePercent || percent > MaxScalePercent {
		return 0, ValidationError("Scale must be between 10 and 200 percent")
	}
	return percent / 100, nil
}

// ParseViewport decodes a JSON viewport such as {"width":1024,"height":768}.
func ParseViewport(raw string, fallback Viewport) (Viewport, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	var vp Viewport
	if err := json.Unmarshal([]byte(raw), &vp); err != nil {
		return Viewport{}, ValidationError("Invalid viewport: " + err.Error())
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return Viewport{}, ValidationError("Invalid viewport: width and height must be positive integers")
	}
	return vp, nil
}

// NormalizeLength coerces a margin value into "<n><unit>" form. Empty values
// become 0px and unit-less numbers are taken as pixels.
func NormalizeLength(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultMargin, nil
	}
	amount, unit, err := parseLength(raw)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(amount, 'f', -1, 64) + unit, nil
}

// LengthInches converts a CSS length into inches, the unit Chrome expects for
// PDF margins.
func LengthInches(value string) (float64, error) {
	amount, unit, err := parseLength(value)
	if err != nil {
		return 0, err
	}
	switch unit {
	case "in":
		return amount, nil
	case "cm":
		return amount / 2.54, nil
	case "mm":
		return amount / 25.4, nil
	case "pt":
		return amount / 72.0, nil
	default:
		return amount / 96.0, nil
	}
}

func parseLength(value string) (float64, string, error) {
	// Bare numbers, including JSON exponent form such as 1e2, are pixels.
	if amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
			return 0, "", fmt.Errorf("invalid length %q", value)
		}
		return amount, "px", nil
	}

	matches := lengthPattern.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, "", fmt.Errorf("invalid length %q", value)
	}

	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid length %q", value)
	}

	unit := strings.ToLower(matches[2])
	switch unit {
	case "":
		unit = "px"
	case "px", "in", "cm", "mm", "pt":
	default:
		return 0, "", fmt.Errorf("unsupported length unit %q", unit)
	}
	return amount, unit, nil
}
