package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/payouts_backend/models"
)

func TestDiffAuditFieldsNoChangesMeansNoEntries(t *testing.T) {
	fields := map[string]string{
		"payout_amount": "100",
		"basis_total":   "1000",
		"currency":      "EUR",
	}
	changes := models.DiffAuditFields(fields, map[string]string{
		"payout_amount": "100",
		"basis_total":   "1000",
		"currency":      "EUR",
	})
	if len(changes) != 0 {
		t.Fatalf("identical states produced %d changes; want 0", len(changes))
	}
}

func TestDiffAuditFieldsOneEntryPerChangedField(t *testing.T) {
	oldValues := map[string]string{
		"payout_amount": "100",
		"basis_total":   "1000",
		"currency":      "EUR",
	}
	newValues := map[string]string{
		"payout_amount": "110",
		"basis_total":   "1100",
		"currency":      "EUR",
	}

	changes := models.DiffAuditFields(oldValues, newValues)
	if len(changes) != 2 {
		t.Fatalf("got %d changes; want 2", len(changes))
	}
	// Sorted by field name.
	if changes[0].FieldName != "basis_total" || changes[1].FieldName != "payout_amount" {
		t.Errorf("unexpected order: %s, %s", changes[0].FieldName, changes[1].FieldName)
	}
	if changes[0].OldValue != "1000" || changes[0].NewValue != "1100" {
		t.Errorf("basis_total diff = %q -> %q", changes[0].OldValue, changes[0].NewValue)
	}
}

func TestDiffAuditFieldsNewFieldDiffsAgainstEmpty(t *testing.T) {
	changes := models.DiffAuditFields(
		map[string]string{},
		map[string]string{"notes": "late import"},
	)
	if len(changes) != 1 {
		t.Fatalf("got %d changes; want 1", len(changes))
	}
	if changes[0].OldValue != "" || changes[0].NewValue != "late import" {
		t.Errorf("diff = %q -> %q; want \"\" -> \"late import\"", changes[0].OldValue, changes[0].NewValue)
	}
}

func TestDiffAuditFieldsRemovedFieldDiffsAgainstEmpty(t *testing.T) {
	changes := models.DiffAuditFields(
		map[string]string{"notes": "temp"},
		map[string]string{},
	)
	if len(changes) != 1 || changes[0].NewValue != "" {
		t.Fatalf("unexpected diff for removed field: %+v", changes)
	}
}
