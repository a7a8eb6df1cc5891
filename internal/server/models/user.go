package models

import "time"

// User is a registered account. HashedPassword holds a bcrypt hash and is
// never serialized.
type User struct {
	ID             int64     `json:"id"`
	UserName       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      *string   `json:"first_name"`
	LastName       *string   `json:"last_name"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"-"`
}

// UserCreate is the registration input.
type UserCreate struct {
	UserName  string
	Email     string
	FirstName *string
	LastName  *string
	Password  string
}
