package assist

import "fmt"

// Institution is one entry of the upstream institutions listing. Institutions
// carry every historical name; the first entry is the current one.
type Institution struct {
	ID    int               `json:"id"`
	Names []InstitutionName `json:"names"`
}

type InstitutionName struct {
	Name string `json:"name"`
}

// CurrentName returns the first listed name, or "" when none is listed.
func (i Institution) CurrentName() string {
	if len(i.Names) == 0 {
		return ""
	}
	return i.Names[0].Name
}

// AcademicYear is one entry of the upstream academic years listing.
type AcademicYear struct {
	ID       int `json:"Id"`
	FallYear int `json:"FallYear"`
}

// Label renders the year as "2023-2024".
func (y AcademicYear) Label() string {
	return fmt.Sprintf("%d-%d", y.FallYear, y.FallYear+1)
}

// InstitutionAgreement describes a receiving institution a sending institution
// has agreements with, and the years those agreements cover.
type InstitutionAgreement struct {
	InstitutionParentID int    `json:"institutionParentId"`
	InstitutionName     string `json:"institutionName"`
	ReceivingYearIDs    []int  `json:"receivingYearIds"`
}

// Report is one major or department agreement listing entry.
type Report struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// ReportQuery selects a majors or departments listing.
type ReportQuery struct {
	SendingID    int
	ReceivingID  int
	YearID       int
	CategoryCode string
}

type reportsResponse struct {
	Reports []Report `json:"reports"`
}
