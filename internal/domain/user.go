package domain

import "time"

// User is a player record keyed by the Telegram user id.
// BlockedUntil is epoch milliseconds, matching the mini-app client;
// BlockDuration is in seconds.
type User struct {
	UserID                string    `json:"userId"`
	IsBot                 bool      `json:"isBot"`
	FirstName             string    `json:"firstName"`
	LastName              string    `json:"lastName"`
	Username              string    `json:"username"`
	LanguageCode          string    `json:"languageCode"`
	IsPremium             bool      `json:"isPremium"`
	AddedToAttachmentMenu bool      `json:"addedToAttachmentMenu"`
	AllowsWriteToPM       bool      `json:"allowsWriteToPm"`
	PhotoURL              string    `json:"photoUrl"`
	TonAddress            string    `json:"tonAddress"`
	InviterID             string    `json:"inviterId,omitempty"`
	CurrentMazeID         string    `json:"currentMazeId,omitempty"`
	Score                 int64     `json:"score"`
	Items                 []string  `json:"items"`
	BlockedUntil          int64     `json:"blockedUntil"`
	BlockDuration         int64     `json:"blockDuration"`
	LastMazeSize          *MazeSize `json:"lastMazeSize,omitempty"`
	CreatedAt             time.Time `json:"-"`
}

// Blocked reports whether the user is blocked at the given instant.
func (u *User) Blocked(now time.Time) bool {
	return now.UnixMilli() < u.BlockedUntil
}

// Referral is the public projection of an invited user.
type Referral struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}
