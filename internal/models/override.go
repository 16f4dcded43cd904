package models

import "time"

// CustomerOverride pins one customer to a provider/model pair
type CustomerOverride struct {
	UserID       string    `db:"user_id" json:"user_id"`
	ProviderName string    `db:"provider_name" json:"provider_name"`
	ModelName    string    `db:"model_name" json:"model_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
