package handler

import (
	"net/url"
	"strconv"
	"strings"

	"transferai/internal/agreement/models"
	dErrors "transferai/pkg/domain-errors"
)

// AgreementsRequest is the body of POST /api/articulation-agreements.
type AgreementsRequest struct {
	SendingIDs  []int  `json:"sendingInstitutionIds"`
	ReceivingID int    `json:"receivingInstitutionId"`
	YearID      int    `json:"academicYearId"`
	MajorKey    string `json:"majorKey"`
}

// Validate implements httputil.Validatable.
func (r *AgreementsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.SendingIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "sendingInstitutionIds must be a non-empty list")
	}
	for _, id := range r.SendingIDs {
		if id <= 0 {
			return dErrors.New(dErrors.CodeValidation, "sendingInstitutionIds must be positive integers")
		}
	}
	if r.ReceivingID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "receivingInstitutionId is required")
	}
	if r.YearID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "academicYearId is required")
	}
	r.MajorKey = strings.TrimSpace(r.MajorKey)
	if r.MajorKey == "" {
		return dErrors.New(dErrors.CodeValidation, "majorKey is required")
	}
	if _, err := models.ParseMajorKey(r.MajorKey); err != nil {
		return err
	}
	return nil
}

// positiveInt reads a required positive integer query parameter.
func positiveInt(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "missing required parameter '"+name+"'")
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "parameter '"+name+"' must be a positive integer")
	}
	return v, nil
}

// idList reads a comma separated list of ids, e.g. sendingId=110,113.
func idList(q url.Values, name string) ([]int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing required parameter '"+name+"'")
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v <= 0 {
			return nil, dErrors.New(dErrors.CodeBadRequest, "parameter '"+name+"' must list positive integers")
		}
		ids = append(ids, v)
	}
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid '"+name+"' parameter")
	}
	return ids, nil
}
