// Package model defines domain entities for the application.
package model

import "time"

// User is a newsletter operator allowed to publish issues.
type User struct {
	ID        string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
