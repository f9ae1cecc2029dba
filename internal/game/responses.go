package game

import "github.com/mazeportal/maze-api/internal/domain"

// UserData is the profile subset echoed with every maze payload.
type UserData struct {
	UserID     string   `json:"userId"`
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Username   string   `json:"username"`
	PhotoURL   string   `json:"photoUrl"`
	TonAddress string   `json:"tonAddress"`
	Items      []string `json:"items"`
}

// GetResponse is the full maze presentation returned by the get action.
type GetResponse struct {
	MazeID         string          `json:"mazeId"`
	MazeSize       domain.MazeSize `json:"mazeSize"`
	MazeMatrix     [][]domain.Cell `json:"mazeMatrix"`
	WallColor      string          `json:"wallColor"`
	FloorColor     string          `json:"floorColor"`
	PlayerColor    string          `json:"playerColor"`
	PortalColor    string          `json:"portalColor"`
	FinishPosition domain.Position `json:"finishPosition"`
	PlayerPosition domain.Position `json:"playerPosition"`
	Item           *domain.Item    `json:"item"`
	Score          int64           `json:"score"`
	UserData       UserData        `json:"userData"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// PickupResponse acknowledges a successful item pickup.
type PickupResponse struct {
	Message string       `json:"message"`
	Item    *domain.Item `json:"item"`
}

// FinishResponse acknowledges a completed maze.
type FinishResponse struct {
	Message  string `json:"message"`
	NewScore int64  `json:"newScore"`
}

// ReferralsResponse lists the caller's invitees.
type ReferralsResponse struct {
	Referrals []domain.Referral `json:"referrals"`
}
