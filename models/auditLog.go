package models

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"gorm.io/gorm"
)

// AuditLogEntry is append-only: one entry per changed field per mutation.
// Nothing is ever written for a field whose value did not change.
type AuditLogEntry struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserEmail string    `gorm:"size:255;index" json:"user_email"`
	TableName string    `gorm:"size:100;not null;index:idx_audit_record" json:"table_name"`
	RecordId  int       `gorm:"not null;index:idx_audit_record" json:"record_id"`
	FieldName string    `gorm:"size:100;not null" json:"field_name"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FieldChange is one field-level diff produced by DiffAuditFields.
type FieldChange struct {
	FieldName string
	OldValue  string
	NewValue  string
}

// DiffAuditFields compares old and new string representations field by field
// and returns one change per field that differs. Fields present in only one
// map diff against the empty string. Output is sorted by field name so audit
// rows are written in a stable order.
func DiffAuditFields(oldValues, newValues map[string]string) []FieldChange {
	names := make(map[string]bool, len(oldValues)+len(newValues))
	for name := range oldValues {
		names[name] = true
	}
	for name := range newValues {
		names[name] = true
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var changes []FieldChange
	for _, name := range sorted {
		oldV := oldValues[name]
		newV := newValues[name]
		if oldV == newV {
			continue
		}
		changes = append(changes, FieldChange{FieldName: name, OldValue: oldV, NewValue: newV})
	}
	return changes
}

// WriteFieldAudits persists one entry per change inside the caller's
// transaction. The acting user's email is taken from the request context.
func WriteFieldAudits(tx *gorm.DB, tableName string, recordId int, changes []FieldChange) error {
	if len(changes) == 0 {
		return nil
	}

	ctx := tx.Statement.Context
	userEmail := ""
	if ctx != nil {
		if v, ok := utils.GetUserEmailFromContext(ctx); ok {
			userEmail = v
		}
	}

	entries := make([]AuditLogEntry, 0, len(changes))
	for _, change := range changes {
		entries = append(entries, AuditLogEntry{
			UserEmail: userEmail,
			TableName: tableName,
			RecordId:  recordId,
			FieldName: change.FieldName,
			OldValue:  change.OldValue,
			NewValue:  change.NewValue,
		})
	}
	return tx.Create(&entries).Error
}

func GetAuditLogEntries(ctx context.Context, tableName string, recordId int) ([]*AuditLogEntry, error) {
	db := config.GetDB()
	var results []*AuditLogEntry
	err := db.WithContext(ctx).
		Where("table_name = ? AND record_id = ?", tableName, recordId).
		Order("created_at, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
