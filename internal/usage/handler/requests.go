package handler

import (
	"strings"

	dErrors "transferai/pkg/domain-errors"
)

// UpdateTierRequest is the body of PUT /admin/accounts/{accountID}/tier.
type UpdateTierRequest struct {
	Tier string `json:"tier"`
}

func (r *UpdateTierRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Tier = strings.ToLower(strings.TrimSpace(r.Tier))
	if r.Tier == "" {
		return dErrors.New(dErrors.CodeValidation, "tier is required")
	}
	return nil
}

type UpdateTierResponse struct {
	AccountID string `json:"accountId"`
	Tier      string `json:"tier"`
}
