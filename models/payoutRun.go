package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// PayoutRun is the single per-month container for computed payout lines.
// The unique index on month_id is the backstop for the lookup-first
// getOrCreate; a racing insert loses with a duplicate-key error and re-reads.
type PayoutRun struct {
	ID        int       `gorm:"primary_key" json:"id"`
	MonthId   int       `gorm:"not null;uniqueIndex" json:"month_id"`
	Status    RunStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	Notes     string    `gorm:"size:500" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDuplicateKeyErr reports a MySQL 1062 unique-key violation, the signal
// that a lookup-then-insert lost a race to a concurrent writer.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// auditFields is the string representation compared when diffing run changes.
func (r *PayoutRun) auditFields() map[string]string {
	return map[string]string{
		"month_id": strconv.Itoa(r.MonthId),
		"status":   string(r.Status),
		"notes":    r.Notes,
	}
}

// GetOrCreatePayoutRun looks up the run for a month and creates a draft one
// only when none exists. Re-computation reuses the existing run; a second run
// for the same month is never created. Creation is audited by diffing against
// the zero-value run, so a recompute that reuses an existing run writes no
// run-level audit entries.
func GetOrCreatePayoutRun(tx *gorm.DB, monthId int) (*PayoutRun, error) {

	var run PayoutRun
	err := tx.Where("month_id = ?", monthId).First(&run).Error
	if err == nil {
		return &run, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	run = PayoutRun{
		MonthId: monthId,
		Status:  RunStatusDraft,
	}
	err = tx.Transaction(func(innerTx *gorm.DB) error {
		if err := innerTx.Create(&run).Error; err != nil {
			return err
		}
		zero := PayoutRun{}
		changes := DiffAuditFields(zero.auditFields(), run.auditFields())
		return WriteFieldAudits(innerTx, "payout_runs", run.ID, changes)
	})
	if err != nil {
		if IsDuplicateKeyErr(err) {
			// Lost the race to a concurrent compute; use its run.
			if rerr := tx.Where("month_id = ?", monthId).First(&run).Error; rerr != nil {
				return nil, rerr
			}
			return &run, nil
		}
		return nil, err
	}
	return &run, nil
}

func GetPayoutRunByMonth(ctx context.Context, monthId int) (*PayoutRun, error) {

	db := config.GetDB()
	var run PayoutRun
	err := db.WithContext(ctx).Where("month_id = ?", monthId).First(&run).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &run, nil
}

// FinalizePayoutRun locks a month's run. A finalized run rejects recomputes
// until an admin reopens it; the status change itself is audited.
func FinalizePayoutRun(ctx context.Context, monthId int, notes string) (*PayoutRun, error) {

	db := config.GetDB()

	run, err := GetPayoutRunByMonth(ctx, monthId)
	if err != nil {
		return nil, err
	}
	if run.Status == RunStatusFinalized {
		return nil, utils.NewClientError("payout run is already finalized")
	}

	changes := DiffAuditFields(
		map[string]string{"status": string(run.Status), "notes": run.Notes},
		map[string]string{"status": string(RunStatusFinalized), "notes": notes},
	)

	run.Status = RunStatusFinalized
	run.Notes = notes
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return err
		}
		return WriteFieldAudits(tx, "payout_runs", run.ID, changes)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ReopenPayoutRun flips a finalized run back to draft so it can be
// recomputed after a late correction.
func ReopenPayoutRun(ctx context.Context, monthId int) (*PayoutRun, error) {

	db := config.GetDB()

	run, err := GetPayoutRunByMonth(ctx, monthId)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusFinalized {
		return nil, utils.NewClientError("payout run is not finalized")
	}

	changes := DiffAuditFields(
		map[string]string{"status": string(run.Status)},
		map[string]string{"status": string(RunStatusDraft)},
	)

	run.Status = RunStatusDraft
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return err
		}
		return WriteFieldAudits(tx, "payout_runs", run.ID, changes)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
