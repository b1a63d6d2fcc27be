package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// Reconcile scans for trust graph states that an interrupted or legacy write
// could have left behind and repairs each one in its own transaction:
//   - a vouched join request whose email has no vouched profile
//   - a vouched join request with no linked profile
//   - a profile with vouched_by set but no edge targeting it
//
// Repairs are idempotent; a second pass over repaired data changes nothing.
func (s *Service) Reconcile(ctx context.Context) (report *models.ReconcileReport, err error) {
	ctx, end := s.startSpan(ctx, "reconcile")
	defer func() { end(err) }()

	report = &models.ReconcileReport{}
	requests, err := s.reads.JoinRequests.ListByStatus(ctx, models.JoinRequestVouched)
	if err != nil {
		return nil, storageError(err, "failed to list vouched join requests")
	}
	for _, r := range requests {
		report.Scanned++
		repairs, err := s.reconcileRequest(ctx, r)
		s.record(report, "join_request "+r.ID.String(), repairs, err)
	}

	profiles, err := s.reads.Profiles.ListVouched(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list vouched profiles")
	}
	for _, p := range profiles {
		if p.VouchedBy == nil {
			continue
		}
		report.Scanned++
		repairs, err := s.reconcileEdge(ctx, p.ID)
		s.record(report, "profile "+p.ID.String(), repairs, err)
	}

	if s.metrics != nil {
		s.metrics.IncrementRepairs(report.Repaired)
	}
	if report.Repaired > 0 || report.Failed > 0 {
		s.logger.WarnContext(ctx, "reconciliation repaired trust graph",
			"scanned", report.Scanned,
			"repaired", report.Repaired,
			"failed", report.Failed,
		)
	}
	return report, nil
}

func (s *Service) record(report *models.ReconcileReport, subject string, repairs []string, err error) {
	if err != nil {
		report.Failed++
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", subject, err))
		return
	}
	if len(repairs) > 0 {
		report.Repaired++
		for _, r := range repairs {
			report.Repairs = append(report.Repairs, subject+": "+r)
		}
	}
}

func (s *Service) reconcileRequest(ctx context.Context, request *models.JoinRequest) (repairs []string, err error) {
	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "reconcile", func(ctx context.Context, stores Stores) error {
		repairs = nil
		r, err := stores.JoinRequests.FindByIDForUpdate(ctx, request.ID)
		if err != nil {
			return storageError(err, "failed to load join request")
		}
		if r.Status != models.JoinRequestVouched {
			return nil
		}

		var p *models.Profile
		if r.ProfileID != nil {
			p, err = stores.Profiles.FindByID(ctx, *r.ProfileID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInvariantViolation, "join request links a missing profile")
			}
			if err != nil {
				return storageError(err, "failed to load profile")
			}
		} else {
			var created bool
			p, created, err = findOrCreateByEmail(ctx, stores.Profiles, r.Name, r.Email, now)
			if err != nil {
				return err
			}
			if created {
				repairs = append(repairs, "created missing profile")
			}
			if err := stores.JoinRequests.LinkProfile(ctx, r.ID, p.ID); err != nil {
				return storageError(err, "failed to link join request")
			}
			repairs = append(repairs, "linked profile "+p.ID.String())
		}

		if !p.IsVouched() {
			if voucher := resolveVoucher(ctx, stores.Profiles, r.VoucherID, p.ID); voucher != nil {
				if _, err := vouch(ctx, stores, *voucher, p, models.NoteReconciled, now); err != nil {
					return err
				}
			} else {
				if err := stores.Profiles.MarkVouched(ctx, p.ID, nil, now); err != nil {
					return storageError(err, "failed to mark profile vouched")
				}
				p.ApplyVouch(nil, now)
			}
			repairs = append(repairs, "marked profile vouched")
		}

		if len(repairs) == 0 {
			return nil
		}
		return s.emitAudit(ctx, audit.EventVouchRepaired, "", r.ID.String(), fmt.Sprint(repairs))
	})
	return repairs, err
}

func (s *Service) reconcileEdge(ctx context.Context, profileID id.ProfileID) (repairs []string, err error) {
	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "reconcile", func(ctx context.Context, stores Stores) error {
		repairs = nil
		p, err := stores.Profiles.FindByID(ctx, profileID)
		if err != nil {
			return storageError(err, "failed to load profile")
		}
		if p.VouchedBy == nil {
			return nil
		}
		edges, err := stores.Vouches.ListByVouched(ctx, p.ID)
		if err != nil {
			return storageError(err, "failed to list vouches")
		}
		if len(edges) > 0 {
			return nil
		}
		edge, err := models.NewVouchEdge(id.VouchEdgeID(uuid.New()), *p.VouchedBy, p.ID, models.NoteReconciled, now)
		if err != nil {
			return err
		}
		if err := stores.Vouches.Append(ctx, edge); err != nil {
			return storageError(err, "failed to record vouch")
		}
		repairs = append(repairs, "appended missing edge from "+p.VouchedBy.String())
		return s.emitAudit(ctx, audit.EventVouchRepaired, "", p.ID.String(), "missing edge")
	})
	return repairs, err
}
