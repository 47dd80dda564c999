package models

import "time"

// Lease is a named, expiring lock row used to keep a single sweeper running.
type Lease struct {
	Name      string    `gorm:"primaryKey"`
	Holder    string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
