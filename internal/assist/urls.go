package assist

import (
	"strconv"
	"strings"
)

const DefaultSiteURL = "https://assist.org"

// AgreementView selects how the rendered agreement page groups its content.
type AgreementView struct {
	ByDepartment bool
	SendingView  bool
	Key          string
}

// AgreementURL builds the human-facing transfer results page for one
// agreement. The key is path-shaped and passed through unescaped, as the site
// itself links it.
func AgreementURL(site string, yearID, sendingID, receivingID int, view AgreementView) string {
	viewBy := "major"
	if view.ByDepartment {
		viewBy = "dept"
	}
	var b strings.Builder
	b.WriteString(siteRoot(site))
	b.WriteString("/transfer/results?year=")
	b.WriteString(strconv.Itoa(yearID))
	b.WriteString("&institution=")
	b.WriteString(strconv.Itoa(sendingID))
	b.WriteString("&agreement=")
	b.WriteString(strconv.Itoa(receivingID))
	b.WriteString("&agreementType=to&viewAgreementsOptions=true&view=agreement&viewBy=")
	b.WriteString(viewBy)
	if view.SendingView {
		b.WriteString("&viewSendingAgreements=true")
	} else {
		b.WriteString("&viewSendingAgreements=false")
	}
	b.WriteString("&viewByKey=")
	b.WriteString(view.Key)
	return b.String()
}

// IGETCURL builds the general-education transferability page for a sending
// institution and year.
func IGETCURL(site string, yearID, sendingID int) string {
	return siteRoot(site) + "/transfer/results?year=" + strconv.Itoa(yearID) +
		"&institution=" + strconv.Itoa(sendingID) +
		"&type=IGETC&view=transferability&viewBy=igetcArea&viewSendingAgreements=false&viewByKey=all"
}

func siteRoot(site string) string {
	if site == "" {
		site = DefaultSiteURL
	}
	return strings.TrimRight(site, "/")
}
