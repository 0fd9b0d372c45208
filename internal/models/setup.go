package models

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SetupModels creates the backend schema on a plain Postgres database.
// Hosted deployments own their schema; this is for local development
// against the postgres driver.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Customer{},
		&DeliveryAgent{},
		&Assignment{},
		&DailyDelivery{},
		&Product{},
		&Invoice{},
		&InvoiceItem{},
		&Payment{},
		&UserProfile{},
		&BusinessProfile{},
		&SubscriptionPlan{},
		&UserSubscription{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
