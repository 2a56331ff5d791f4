package models

import "time"

type ErrorLog struct {
	ID        int64     `json:"id"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	UserID    *int64    `json:"user_id,omitempty"`
	ClientIP  string    `json:"client_ip"`
	CreatedAt time.Time `json:"created_at"`
}
