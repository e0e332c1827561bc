package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"gorm.io/gorm"
)

// User is a back-office console user. Sessions are redis tokens set at login.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Email     string    `gorm:"size:255" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"size:20;not null;default:'Staff'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {

	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}

// UpdateUserRole follows the same diff-then-log discipline as every other
// mutation: an audit entry is written only when the role actually changes.
func UpdateUserRole(ctx context.Context, id int, role UserRole) (*User, error) {

	db := config.GetDB()

	switch role {
	case UserRoleAdmin, UserRoleStaff, UserRoleViewer:
	default:
		return nil, utils.NewClientError("invalid role " + string(role))
	}

	user, err := utils.FetchSingleModel[User](ctx, id)
	if err != nil {
		return nil, err
	}

	changes := DiffAuditFields(
		map[string]string{"role": string(user.Role)},
		map[string]string{"role": string(role)},
	)

	user.Role = role
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		return WriteFieldAudits(tx, "users", user.ID, changes)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
