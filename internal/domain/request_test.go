package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testViewport = Viewport{Width: 1280, Height: 800}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var de *Error
	require.True(t, errors.As(err, &de), "expected domain error, got %v", err)
	assert.Equal(t, kind, de.Kind)
}

func TestNormalize_Defaults(t *testing.T) {
	opts, err := ConversionRequest{URL: "https://example.com/page"}.Normalize(testViewport)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", opts.URL)
	assert.Equal(t, "example.com", opts.Host)
	assert.Equal(t, testViewport, opts.Viewport)
	assert.Equal(t, Margins{Top: "0px", Right: "0px", Bottom: "0px", Left: "0px"}, opts.Margins)
	assert.Equal(t, 1.0, opts.Scale)
}

func TestNormalize_MissingURL(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		_, err := ConversionRequest{URL: raw}.Normalize(testViewport)
		requireKind(t, err, KindValidation)
		assert.Equal(t, "URL is required", err.Error())
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "example.com", want: "http://example.com", ok: true},
		{raw: "example.com:8080/a?b=c", want: "http://example.com:8080/a?b=c", ok: true},
		{raw: "https://www.example.com", want: "https://www.example.com", ok: true},
		{raw: "HTTP://example.com", want: "http://example.com", ok: true},
		{raw: "example.com/login?next=https://example.com/home", want: "http://example.com/login?next=https://example.com/home", ok: true},
		{raw: "example.com/r?u=http://x", want: "http://example.com/r?u=http://x", ok: true},
		{raw: "ftp://example.com", ok: false},
		{raw: "http://", ok: false},
		{raw: "mailto:someone", ok: false},
		{raw: "http://exa mple.com", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := NormalizeURL(tc.raw)
			if !tc.ok {
				requireKind(t, err, KindValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestParseScale(t *testing.T) {
	for _, percent := range []string{"10", "33", "100", "150", "199.5", "200"} {
		got, err := ParseScale(percent)
		require.NoError(t, err, percent)
		var want float64
		require.NoError(t, json.Unmarshal([]byte(percent), &want))
		assert.Equal(t, want/100, got, percent)
	}

	for _, bad := range []string{"0", "9.99", "200.01", "-50", "1000", "NaN", "nan", "Inf"} {
		_, err := ParseScale(bad)
		requireKind(t, err, KindValidation)
		assert.Equal(t, "Scale must be between 10 and 200 percent", err.Error())
	}

	_, err := ParseScale("big")
	requireKind(t, err, KindValidation)

	got, err := ParseScale("")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestParseViewport(t *testing.T) {
	vp, err := ParseViewport(`{"width": 1024, "height": 768}`, testViewport)
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 1024, Height: 768}, vp)

	vp, err = ParseViewport("", testViewport)
	require.NoError(t, err)
	assert.Equal(t, testViewport, vp)

	for _, bad := range []string{`{"width":`, `[1,2]`, `{"width":0,"height":10}`, `{"width":10}`, `{"width":10.5,"height":3}`} {
		_, err := ParseViewport(bad, testViewport)
		requireKind(t, err, KindValidation)
	}
}

func TestNormalizeLength(t *testing.T) {
	tests := map[string]string{
		"":       "0px",
		"10":     "10px",
		"12.5":   "12.5px",
		"20px":   "20px",
		"1in":    "1in",
		" 2 CM ": "2cm",
		"5mm":    "5mm",
		"72pt":   "72pt",
		"1e2":    "100px",
		"1e21":   "1000000000000000000000px",
		"2.5E1":  "25px",
	}
	for in, want := range tests {
		got, err := NormalizeLength(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"-1px", "10em", "px", "auto", "-1", "NaN", "Inf", "1e2em"} {
		_, err := NormalizeLength(bad)
		assert.Error(t, err, bad)
	}
}

func TestLengthInches(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{input: "1in", want: 1},
		{input: "25.4mm", want: 1},
		{input: "2.54cm", want: 1},
		{input: "72pt", want: 1},
		{input: "96px", want: 1},
		{input: "96", want: 1},
		{input: "0px", want: 0},
	}
	for _, tc := range tests {
		got, err := LengthInches(tc.input)
		require.NoError(t, err, tc.input)
		assert.InDelta(t, tc.want, got, 0.0001, tc.input)
	}
}

func TestConversionRequest_DecodesMixedJSON(t *testing.T) {
	body := `{
		"url": "www.example.com",
		"viewport": "{\"width\":800,\"height\":600}",
		"marginTop": 10,
		"marginRight": "1cm",
		"marginBottom": null,
		"scale": 150
	}`
	var req ConversionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	opts, err := req.Normalize(testViewport)
	require.NoError(t, err)
	assert.Equal(t, "http://www.example.com", opts.URL)
	assert.Equal(t, Viewport{Width: 800, Height: 600}, opts.Viewport)
	assert.Equal(t, Margins{Top: "10px", Right: "1cm", Bottom: "0px", Left: "0px"}, opts.Margins)
	assert.Equal(t, 1.5, opts.Scale)
}

func TestConversionRequest_ViewportObject(t *testing.T) {
	var req ConversionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"url":"example.com","viewport":{"width":375,"height":667},"scale":"50"}`), &req))

	opts, err := req.Normalize(testViewport)
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 375, Height: 667}, opts.Viewport)
	assert.Equal(t, 0.5, opts.Scale)
}

func TestNormalize_InvalidMargin(t *testing.T) {
	_, err := ConversionRequest{URL: "example.com", MarginLeft: "wide"}.Normalize(testViewport)
	requireKind(t, err, KindValidation)
	assert.Contains(t, err.Error(), "marginLeft")
}
