package events

// Dados da aposta anexados ao evento bet_placed
type BetPlaced struct {
	BetID       string `json:"bet_id"`
	UserID      string `json:"user_id"`
	Prediction  string `json:"prediction"`
	TotalAmount string `json:"total_amount"`
	FeeAmount   string `json:"fee_amount"`
	StakeAmount string `json:"stake_amount"`
}
