package models

import "time"

type MailType string

const (
	MailEmailVerification MailType = "email_verification"
	MailPasswordReset     MailType = "password_reset"
	MailPasswordChanged   MailType = "password_changed"
)

// MailEvent is the payload published to the mail topic.
type MailEvent struct {
	Type      MailType  `json:"type"`
	UserID    int64     `json:"user_id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
