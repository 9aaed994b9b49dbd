package domain

import (
	"time"
)

type Role string

const (
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// User 是代理机构的成员，所有排期操作都以 User.ID 作为操作者
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	AgencyID     int64     `json:"agencyID"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}
