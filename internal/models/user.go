package models

import "time"

// User represents a registered Speakly account.
type User struct {
	ID         int64     `json:"id"`
	Phone      string    `json:"phone"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Avatar     *string   `json:"avatar,omitempty"`
	Verified   bool      `json:"verified"`
	EnotCoins  int64     `json:"enot_coins"`
	BalanceRub int64     `json:"balance_rub"`
	CreatedAt  time.Time `json:"created_at"`
}
