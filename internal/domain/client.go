package domain

import "time"

type Client struct {
	ID        string    `json:"id"`
	AgencyID  int64     `json:"agencyID"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
