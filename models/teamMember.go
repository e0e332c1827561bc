package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TeamMember is the roster entry plus the member's payout configuration.
// The compute pipeline treats the configuration as read-only; edits go
// through UpdateTeamMember, which audits every changed field.
type TeamMember struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	Email            string          `gorm:"size:255;uniqueIndex" json:"email"`
	Phone            string          `gorm:"size:32" json:"phone"`
	PayoutType       PayoutType      `gorm:"size:20;not null;default:'percentage'" json:"payout_type"`
	PayoutPercentage decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"payout_percentage"`
	PayoutFlatFee    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"payout_flat_fee"`
	Department       string          `gorm:"size:100" json:"department"`
	Role             string          `gorm:"size:100" json:"role"`
	Category         string          `gorm:"size:100" json:"category"`
	// Currency is the settlement currency for payment instructions (EUR or USD).
	Currency  string    `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTeamMember struct {
	Name             string          `json:"name" binding:"required"`
	Email            string          `json:"email" binding:"required"`
	Phone            string          `json:"phone"`
	PayoutType       string          `json:"payout_type" binding:"required"`
	PayoutPercentage decimal.Decimal `json:"payout_percentage"`
	PayoutFlatFee    decimal.Decimal `json:"payout_flat_fee"`
	Department       string          `json:"department"`
	Role             string          `json:"role"`
	Category         string          `json:"category"`
	Currency         string          `json:"currency"`
	Active           *bool           `json:"active"`
}

func (input *NewTeamMember) validate() (PayoutType, error) {
	if !utils.IsValidEmail(input.Email) {
		return "", utils.NewClientError("invalid email " + input.Email)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return "", utils.NewClientError("invalid phone " + input.Phone)
		}
	}
	payoutType, err := ParsePayoutType(input.PayoutType)
	if err != nil {
		return "", err
	}
	if payoutType == PayoutTypePercentage && input.PayoutPercentage.IsNegative() {
		return "", utils.NewClientError("payout_percentage must not be negative")
	}
	if payoutType == PayoutTypeFlatFee && input.PayoutFlatFee.IsNegative() {
		return "", utils.NewClientError("payout_flat_fee must not be negative")
	}
	switch input.Currency {
	case "", "EUR", "USD":
	default:
		return "", utils.NewClientError("currency must be EUR or USD")
	}
	return payoutType, nil
}

func CreateTeamMember(ctx context.Context, input *NewTeamMember) (*TeamMember, error) {

	db := config.GetDB()

	payoutType, err := input.validate()
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = "EUR"
	}

	member := TeamMember{
		Name:             input.Name,
		Email:            input.Email,
		Phone:            input.Phone,
		PayoutType:       payoutType,
		PayoutPercentage: input.PayoutPercentage,
		PayoutFlatFee:    utils.Round2(input.PayoutFlatFee),
		Department:       input.Department,
		Role:             input.Role,
		Category:         input.Category,
		Currency:         currency,
		Active:           utils.DereferencePtr(input.Active, true),
	}

	err = db.WithContext(ctx).Create(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// auditFields is the string representation compared when diffing updates.
func (m *TeamMember) auditFields() map[string]string {
	return map[string]string{
		"name":              m.Name,
		"email":             m.Email,
		"phone":             m.Phone,
		"payout_type":       string(m.PayoutType),
		"payout_percentage": m.PayoutPercentage.String(),
		"payout_flat_fee":   m.PayoutFlatFee.String(),
		"department":        m.Department,
		"role":              m.Role,
		"category":          m.Category,
		"currency":          m.Currency,
		"active":            fmt.Sprint(m.Active),
	}
}

// UpdateTeamMember updates the roster entry and writes one audit entry per
// field that actually changed. Updating a field to its current value writes
// nothing.
func UpdateTeamMember(ctx context.Context, id int, input *NewTeamMember) (*TeamMember, error) {

	db := config.GetDB()

	payoutType, err := input.validate()
	if err != nil {
		return nil, err
	}

	member, err := utils.FetchSingleModel[TeamMember](ctx, id)
	if err != nil {
		return nil, err
	}
	oldFields := member.auditFields()

	member.Name = input.Name
	member.Email = input.Email
	member.Phone = input.Phone
	member.PayoutType = payoutType
	member.PayoutPercentage = input.PayoutPercentage
	member.PayoutFlatFee = utils.Round2(input.PayoutFlatFee)
	member.Department = input.Department
	member.Role = input.Role
	member.Category = input.Category
	if input.Currency != "" {
		member.Currency = input.Currency
	}
	member.Active = utils.DereferencePtr(input.Active, member.Active)

	changes := DiffAuditFields(oldFields, member.auditFields())

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(member).Error; err != nil {
			return err
		}
		return WriteFieldAudits(tx, "team_members", member.ID, changes)
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func GetTeamMember(ctx context.Context, id int) (*TeamMember, error) {
	return utils.FetchSingleModel[TeamMember](ctx, id)
}

// GetActiveTeamMembers returns the roster the aggregation step walks; members
// without any basis records for a month still get a zero payout line.
func GetActiveTeamMembers(ctx context.Context) ([]*TeamMember, error) {

	db := config.GetDB()
	var results []*TeamMember
	err := db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ValidatePayoutConfig rejects configurations the calculator cannot price.
func (m *TeamMember) ValidatePayoutConfig() error {
	switch m.PayoutType {
	case PayoutTypePercentage:
		if m.PayoutPercentage.IsNegative() {
			return errors.New("negative payout_percentage")
		}
	case PayoutTypeFlatFee:
		if m.PayoutFlatFee.IsNegative() {
			return errors.New("negative payout_flat_fee")
		}
	default:
		return utils.NewClientError(fmt.Sprintf("team member %d has unknown payout type %q", m.ID, m.PayoutType))
	}
	return nil
}
