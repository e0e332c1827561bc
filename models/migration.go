package models

import (
	"log"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Month{},
		&TeamMember{},
		&BasisRecord{},
		&PayoutRun{}, &PayoutLine{},
		&AuditLogEntry{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
