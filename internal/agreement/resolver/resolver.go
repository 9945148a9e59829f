// Package resolver turns upstream ids into display names and caches the
// listings it fetches for the life of the process.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"transferai/internal/agreement/models"
	"transferai/internal/assist"
)

// Upstream is the subset of the articulation provider client the resolver uses.
type Upstream interface {
	Institutions(ctx context.Context) ([]assist.Institution, error)
	AcademicYears(ctx context.Context) ([]assist.AcademicYear, error)
	InstitutionAgreements(ctx context.Context, sendingID int) ([]assist.InstitutionAgreement, error)
	Reports(ctx context.Context, q assist.ReportQuery) ([]assist.Report, error)
}

// Resolver caches every listing it fetches. Entries are never evicted; the
// id space is small and stable.
//
// The upstream has no single-item lookups, so a miss fetches the whole
// listing and caches every entry in it.
type Resolver struct {
	upstream Upstream
	logger   *slog.Logger
	group    singleflight.Group

	mu              sync.RWMutex
	institutionName map[int]string
	sendingCatalog  map[string]int
	yearLabel       map[int]string
	reports         map[reportQueryKey][]assist.Report
	majorLabel      map[string]string
	agreements      map[int][]assist.InstitutionAgreement
}

type reportQueryKey struct {
	sendingID, receivingID, yearID int
	category                       string
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(upstream Upstream, opts ...Option) *Resolver {
	r := &Resolver{
		upstream:        upstream,
		logger:          slog.Default(),
		institutionName: make(map[int]string),
		yearLabel:       make(map[int]string),
		reports:         make(map[reportQueryKey][]assist.Report),
		majorLabel:      make(map[string]string),
		agreements:      make(map[int][]assist.InstitutionAgreement),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) ResolveInstitutionName(ctx context.Context, id int) (string, bool, error) {
	r.mu.RLock()
	name, ok := r.institutionName[id]
	r.mu.RUnlock()
	if ok {
		return name, true, nil
	}

	if err := r.loadInstitutions(ctx); err != nil {
		return "", false, err
	}

	r.mu.RLock()
	name, ok = r.institutionName[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.InfoContext(ctx, "institution name not found", "institution_id", id)
	}
	return name, ok, nil
}

func (r *Resolver) ResolveYearLabel(ctx context.Context, yearID int) (string, bool, error) {
	r.mu.RLock()
	label, ok := r.yearLabel[yearID]
	r.mu.RUnlock()
	if ok {
		return label, true, nil
	}

	_, err, _ := r.group.Do("years", func() (any, error) {
		years, err := r.upstream.AcademicYears(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		for _, y := range years {
			if y.FallYear > 0 {
				r.yearLabel[y.ID] = y.Label()
			}
		}
		r.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return "", false, err
	}

	r.mu.RLock()
	label, ok = r.yearLabel[yearID]
	r.mu.RUnlock()
	if !ok {
		r.logger.InfoContext(ctx, "academic year not found", "year_id", yearID)
	}
	return label, ok, nil
}

// ResolveMajorLabel finds the label of a major or department key. The key's
// category selects which listing is searched.
func (r *Resolver) ResolveMajorLabel(ctx context.Context, key models.MajorKey) (string, bool, error) {
	r.mu.RLock()
	label, ok := r.majorLabel[key.Raw]
	r.mu.RUnlock()
	if ok {
		return label, true, nil
	}

	reports, err := r.listReports(ctx, reportQueryKey{
		sendingID:   key.SendingID,
		receivingID: key.ReceivingID,
		yearID:      key.YearID,
		category:    key.Category.Code(),
	})
	if err != nil {
		return "", false, err
	}
	for _, rep := range reports {
		if rep.Key == key.Raw {
			return rep.Label, true, nil
		}
	}
	r.logger.InfoContext(ctx, "major key not found", "major_key", key.Raw)
	return "", false, nil
}

func (r *Resolver) loadInstitutions(ctx context.Context) error {
	_, err, _ := r.group.Do("institutions", func() (any, error) {
		institutions, err := r.upstream.Institutions(ctx)
		if err != nil {
			return nil, err
		}
		catalog := make(map[string]int)
		r.mu.Lock()
		for _, inst := range institutions {
			if name := inst.CurrentName(); name != "" {
				r.institutionName[inst.ID] = name
			}
			for _, n := range inst.Names {
				catalog[n.Name] = inst.ID
			}
		}
		r.sendingCatalog = catalog
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *Resolver) listReports(ctx context.Context, q reportQueryKey) ([]assist.Report, error) {
	r.mu.RLock()
	reports, ok := r.reports[q]
	r.mu.RUnlock()
	if ok {
		return reports, nil
	}

	flightKey := fmt.Sprintf("reports:%d:%d:%d:%s", q.sendingID, q.receivingID, q.yearID, q.category)
	v, err, _ := r.group.Do(flightKey, func() (any, error) {
		reports, err := r.upstream.Reports(ctx, assist.ReportQuery{
			SendingID:    q.sendingID,
			ReceivingID:  q.receivingID,
			YearID:       q.yearID,
			CategoryCode: q.category,
		})
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.reports[q] = reports
		for _, rep := range reports {
			r.majorLabel[rep.Key] = rep.Label
		}
		r.mu.Unlock()
		return reports, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]assist.Report), nil
}

func (r *Resolver) listAgreements(ctx context.Context, sendingID int) ([]assist.InstitutionAgreement, error) {
	r.mu.RLock()
	agreements, ok := r.agreements[sendingID]
	r.mu.RUnlock()
	if ok {
		return agreements, nil
	}

	v, err, _ := r.group.Do(fmt.Sprintf("agreements:%d", sendingID), func() (any, error) {
		agreements, err := r.upstream.InstitutionAgreements(ctx, sendingID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.agreements[sendingID] = agreements
		r.mu.Unlock()
		return agreements, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]assist.InstitutionAgreement), nil
}
