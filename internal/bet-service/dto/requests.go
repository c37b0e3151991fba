package dto

// PlaceBetRequest é o corpo de POST /bets
type PlaceBetRequest struct {
	UserID     string `json:"userId" validate:"required,max=64"`
	RoundID    string `json:"roundId" validate:"required,uuid"`
	Prediction string `json:"prediction" validate:"required,oneof=UP DOWN"` // UP | DOWN
	Amount     string `json:"amount" validate:"required,numeric"`           // decimal, até 2 casas
}
