package models

import "time"

// User is the messenger's projection of an account row.
type User struct {
	ID         int        `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	Avatar     string     `db:"avatar" json:"avatar"`
	IsOnline   bool       `db:"is_online" json:"is_online"`
	LastOnline *time.Time `db:"last_online" json:"last_online,omitempty"`
}

// UserRef is the compact display form carried in presence and message payloads.
type UserRef struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"is_online"`
}

// Ref projects the user into its payload form.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username, Avatar: u.Avatar, IsOnline: u.IsOnline}
}
