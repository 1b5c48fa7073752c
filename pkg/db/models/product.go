package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the catalog fields the order subsystem needs. Stock is
// mutated only through conditional decrement/increment queries.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	PricePaisa int       `gorm:"column:price_paisa;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
