package models

import "time"

// AgreementResult is one entry of a multi-institution fetch. Filename is nil
// when the fetch failed, and Error then carries a client-safe reason.
type AgreementResult struct {
	SendingID   int     `json:"sendingId"`
	SendingName string  `json:"sendingName"`
	Filename    *string `json:"pdfFilename"`
	Error       string  `json:"error,omitempty"`
}

// Failed reports whether the entry carries no document.
func (r AgreementResult) Failed() bool {
	return r.Filename == nil
}

// RenderRequest describes one headless render of an upstream page.
type RenderRequest struct {
	URL string
	// ReadySelector is a CSS selector or an XPath expression that appears
	// once the page has finished rendering.
	ReadySelector string
	// Timeout bounds the whole render when positive. Zero leaves only the
	// renderer's configured step timeouts in force.
	Timeout time.Duration
}

const (
	// AgreementReadySelector matches the rendered report header.
	AgreementReadySelector = `//*[@id="view-results"]/app-report-preview/div[2]/awc-agreement/div/awc-report-header/div[3]/h1`

	// IGETCReadySelector matches the first area title of the IGETC report.
	IGETCReadySelector = "div > div > div > awc-print-header > table > tbody > tr > td > div > div:nth-child(1) > h4.areaTitle"
)
