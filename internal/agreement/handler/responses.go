package handler

import (
	"transferai/internal/agreement/models"
)

// AgreementsResponse is returned by POST /api/articulation-agreements.
// Warnings lists the failed entries; Message is set when nothing was found.
type AgreementsResponse struct {
	Agreements []models.AgreementResult `json:"agreements"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Message    string                   `json:"message,omitempty"`
}

// IGETCResponse is returned by GET /api/igetc-agreement.
type IGETCResponse struct {
	PDFFilename string `json:"pdfFilename"`
}

// PageImagesResponse is returned by GET /api/pdf-images/{filename}.
type PageImagesResponse struct {
	ImageFilenames []string `json:"image_filenames"`
}

// CatalogWarning names a sending institution whose listing failed.
type CatalogWarning struct {
	SendingID   int    `json:"sendingId"`
	ReceivingID int    `json:"receivingId,omitempty"`
	Error       string `json:"error"`
}

// ReceivingInstitutionsResponse is the 207 body of GET /api/receiving-institutions.
type ReceivingInstitutionsResponse struct {
	Institutions map[string]int   `json:"institutions"`
	Warnings     []CatalogWarning `json:"warnings"`
}

// AcademicYearsResponse is the 207 body of GET /api/academic-years.
type AcademicYearsResponse struct {
	Years    map[string]int   `json:"years"`
	Warnings []CatalogWarning `json:"warnings"`
}

// fromResults builds the response and picks the status: 207 when some
// entries failed and at least one succeeded, 500 when all of them failed.
func fromResults(results []models.AgreementResult) (int, AgreementsResponse) {
	resp := AgreementsResponse{Agreements: results}
	succeeded := 0
	for _, r := range results {
		if r.Failed() {
			resp.Warnings = append(resp.Warnings, r.Error)
			continue
		}
		succeeded++
	}
	switch {
	case len(resp.Warnings) == 0:
		return 200, resp
	case succeeded == 0:
		resp.Message = "Failed to fetch any agreements."
		return 500, resp
	default:
		return 207, resp
	}
}

// intersect keeps the entries present with the same id in every listing.
func intersect(listings []map[string]int) map[string]int {
	out := map[string]int{}
	if len(listings) == 0 {
		return out
	}
	for name, id := range listings[0] {
		shared := true
		for _, other := range listings[1:] {
			if otherID, ok := other[name]; !ok || otherID != id {
				shared = false
				break
			}
		}
		if shared {
			out[name] = id
		}
	}
	return out
}
