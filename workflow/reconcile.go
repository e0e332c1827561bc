package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"gorm.io/gorm"
)

// ReconcileLines idempotently persists computed preview lines: the month's
// run is looked up or created once, and each line is upserted by
// (run_id, team_member_id). Re-running with identical inputs converges to the
// same run and line set and writes no audit entries.
//
// The run lookup and the per-line upserts are deliberately not wrapped in one
// transaction; concurrent computes for the same month are tolerated through
// the idempotent upserts rather than locking. Each line and its audit entries
// commit atomically.
func ReconcileLines(ctx context.Context, db *gorm.DB, monthId int, previews []PreviewLine) (*models.PayoutRun, []*models.PayoutLine, error) {

	run, err := models.GetOrCreatePayoutRun(db.WithContext(ctx), monthId)
	if err != nil {
		return nil, nil, err
	}
	if run.Status == models.RunStatusFinalized {
		return nil, nil, utils.NewClientError("payout run is finalized; reopen it before recomputing")
	}

	lines := make([]*models.PayoutLine, 0, len(previews))
	for _, preview := range previews {
		line, err := upsertLine(ctx, db, run.ID, preview)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, line)
	}
	return run, lines, nil
}

func previewToLine(runId int, preview PreviewLine) models.PayoutLine {
	return models.PayoutLine{
		RunId:             runId,
		TeamMemberId:      preview.TeamMemberId,
		BasisWebappAmount: preview.BasisWebappAmount,
		BasisManualAmount: preview.BasisManualAmount,
		BonusAmount:       preview.BonusAmount,
		AdjustmentsAmount: preview.AdjustmentsAmount,
		BasisTotal:        preview.BasisTotal,
		PayoutAmount:      preview.PayoutAmount,
		AmountEur:         preview.AmountEur,
		AmountUsd:         preview.AmountUsd,
		Currency:          preview.Currency,
		BreakdownJson:     preview.BreakdownJson,
	}
}

func upsertLine(ctx context.Context, db *gorm.DB, runId int, preview PreviewLine) (*models.PayoutLine, error) {

	newValues := previewToLine(runId, preview)

	var result *models.PayoutLine
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PayoutLine
		err := tx.Where("run_id = ? AND team_member_id = ?", runId, preview.TeamMemberId).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			cerr := tx.Create(&newValues).Error
			if cerr == nil {
				// A fresh line diffs against the zero value, so every populated
				// field gets an audit entry with an empty-equivalent old value.
				zero := models.PayoutLine{}
				changes := models.DiffPayoutLineFields(&zero, &newValues)
				if aerr := models.WriteFieldAudits(tx, "payout_lines", newValues.ID, changes); aerr != nil {
					return aerr
				}
				result = &newValues
				return nil
			}
			if !models.IsDuplicateKeyErr(cerr) {
				return cerr
			}
			// Lost the insert race to a concurrent compute; re-read its line
			// and fall through to the update path.
			if rerr := tx.Where("run_id = ? AND team_member_id = ?", runId, preview.TeamMemberId).
				First(&existing).Error; rerr != nil {
				return rerr
			}
		}

		changes := models.DiffPayoutLineFields(&existing, &newValues)
		if len(changes) == 0 {
			// Identical inputs: converged already, nothing to write.
			result = &existing
			return nil
		}

		newValues.ID = existing.ID
		newValues.CreatedAt = existing.CreatedAt
		if uerr := tx.Save(&newValues).Error; uerr != nil {
			return uerr
		}
		if aerr := models.WriteFieldAudits(tx, "payout_lines", existing.ID, changes); aerr != nil {
			return aerr
		}
		result = &newValues
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
