package models

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User identity is owned by Casdoor; this is the read-only projection the
// exam service works with.
type User struct {
	ID     string   `json:"id" gorm:"primaryKey;size:255"`
	Name   string   `json:"name" gorm:"size:255"`
	Email  string   `json:"email" gorm:"size:255"`
	Role   UserRole `json:"role" gorm:"size:50;default:student"`
	Active bool     `json:"active" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
