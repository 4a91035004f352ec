package domain

import (
	"encoding/base64"
	"strings"
)

const (
	pdfExt = "pdf"

	conversionCost = 1
)

// File is one converted document inside an Envelope.
type File struct {
	FileName string `json:"FileName"`
	FileExt  string `json:"FileExt"`
	FileSize int    `json:"FileSize"`
	FileData string `json:"FileData"`
}

// ConversionData is the payload of a successful conversion.
type ConversionData struct {
	ConversionCost int    `json:"ConversionCost"`
	Files          []File `json:"Files"`
}

// Envelope is the JSON response of the envelope conversion mode.
type Envelope struct {
	Success bool           `json:"success"`
	Data    ConversionData `json:"data"`
}

// NewEnvelope wraps a rendered PDF for the given source host.
func NewEnvelope(host string, pdf []byte) Envelope {
	return Envelope{
		Success: true,
		Data: ConversionData{
			ConversionCost: conversionCost,
			Files: []File{{
				FileName: FileNameFor(host),
				FileExt:  pdfExt,
				FileSize: len(pdf),
				FileData: base64.StdEncoding.EncodeToString(pdf),
			}},
		},
	}
}

// FileNameFor derives the download name from a hostname: "www.example.com"
// becomes "example.com.pdf".
func FileNameFor(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host + "." + pdfExt
}
