package models

import "bitbucket.org/mmdatafocus/payouts_backend/utils"

type BasisType string

const (
	BasisTypeWebapp BasisType = "webapp"
	BasisTypeManual BasisType = "manual"
	BasisTypeBonus  BasisType = "bonus"
	BasisTypeFine   BasisType = "fine"
)

// ParseBasisType reports unknown choice values as a client error naming the
// bad value, so a misconfigured store surfaces actionably instead of as a 500.
func ParseBasisType(s string) (BasisType, error) {
	switch BasisType(s) {
	case BasisTypeWebapp, BasisTypeManual, BasisTypeBonus, BasisTypeFine:
		return BasisType(s), nil
	}
	return "", utils.NewClientError("invalid basis type " + s)
}

type AdjustmentType string

const (
	AdjustmentTypeBonus AdjustmentType = "bonus"
	AdjustmentTypeFine  AdjustmentType = "fine"
)

func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch AdjustmentType(s) {
	case AdjustmentTypeBonus, AdjustmentTypeFine:
		return AdjustmentType(s), nil
	}
	return "", utils.NewClientError("invalid adjustment type " + s + " (want bonus or fine)")
}

type PayoutType string

const (
	PayoutTypePercentage PayoutType = "percentage"
	PayoutTypeFlatFee    PayoutType = "flat_fee"
)

func ParsePayoutType(s string) (PayoutType, error) {
	switch PayoutType(s) {
	case PayoutTypePercentage, PayoutTypeFlatFee:
		return PayoutType(s), nil
	}
	return "", utils.NewClientError("invalid payout type " + s)
}

type RunStatus string

const (
	RunStatusDraft     RunStatus = "draft"
	RunStatusFinalized RunStatus = "finalized"
)

type UserRole string

const (
	UserRoleAdmin  UserRole = "Admin"
	UserRoleStaff  UserRole = "Staff"
	UserRoleViewer UserRole = "Viewer"
)
