package resolver

import (
	"context"
	"maps"

	"transferai/internal/assist"
)

// SendingInstitutions maps every known institution name, current and
// historical, to its id.
func (r *Resolver) SendingInstitutions(ctx context.Context) (map[string]int, error) {
	r.mu.RLock()
	catalog := r.sendingCatalog
	r.mu.RUnlock()
	if catalog == nil {
		if err := r.loadInstitutions(ctx); err != nil {
			return nil, err
		}
		r.mu.RLock()
		catalog = r.sendingCatalog
		r.mu.RUnlock()
	}
	return maps.Clone(catalog), nil
}

// ReceivingInstitutions maps the names of institutions sendingID has
// agreements with to their ids. Entries without a name or id are skipped.
func (r *Resolver) ReceivingInstitutions(ctx context.Context, sendingID int) (map[string]int, error) {
	agreements, err := r.listAgreements(ctx, sendingID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(agreements))
	seen := make(map[int]bool, len(agreements))
	for _, a := range agreements {
		if a.InstitutionParentID == 0 || a.InstitutionName == "" || seen[a.InstitutionParentID] {
			continue
		}
		seen[a.InstitutionParentID] = true
		out[a.InstitutionName] = a.InstitutionParentID
	}
	return out, nil
}

// AgreementYears maps year labels to year ids for which sendingID has
// agreements with receivingID. Years whose label cannot be resolved are
// dropped.
func (r *Resolver) AgreementYears(ctx context.Context, sendingID, receivingID int) (map[string]int, error) {
	agreements, err := r.listAgreements(ctx, sendingID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, a := range agreements {
		if a.InstitutionParentID != receivingID {
			continue
		}
		for _, yearID := range a.ReceivingYearIDs {
			label, ok, err := r.ResolveYearLabel(ctx, yearID)
			if err != nil {
				return nil, err
			}
			if ok {
				if _, dup := out[label]; !dup {
					out[label] = yearID
				}
			}
		}
		break
	}
	return out, nil
}

// Majors maps major or department labels to their raw keys for one
// institution pair and year. category is "major" or "dept".
func (r *Resolver) Majors(ctx context.Context, sendingID, receivingID, yearID int, category string) (map[string]string, error) {
	if category == "" {
		category = assist.CategoryMajor
	}
	reports, err := r.listReports(ctx, reportQueryKey{
		sendingID:   sendingID,
		receivingID: receivingID,
		yearID:      yearID,
		category:    category,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(reports))
	for _, rep := range reports {
		out[rep.Label] = rep.Key
	}
	return out, nil
}
