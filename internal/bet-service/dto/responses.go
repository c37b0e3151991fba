package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
)

type BetResponse struct {
	BetID      string     `json:"betId"`
	RoundID    string     `json:"roundId"`
	UserID     string     `json:"userId"`
	Prediction string     `json:"prediction"`
	Amount     string     `json:"amount"`
	Fee        string     `json:"fee"`
	Stake      string     `json:"stake"`
	Result     string     `json:"result"` // PENDING | WIN | LOSS | REFUND
	Payout     string     `json:"payout"`
	Profit     string     `json:"profit"`
	CreatedAt  time.Time  `json:"createdAt"`
	SettledAt  *time.Time `json:"settledAt,omitempty"`
}

type RoundResponse struct {
	RoundID     string    `json:"roundId"`
	Seq         int64     `json:"seq"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"startTime"`
	LockTime    time.Time `json:"lockTime"`
	EndTime     time.Time `json:"endTime"`
	StartPrice  string    `json:"startPrice,omitempty"`
	EndPrice    string    `json:"endPrice,omitempty"`
	Result      string    `json:"result,omitempty"`
	UpPool      string    `json:"upPool"`
	DownPool    string    `json:"downPool"`
	UpBets      int       `json:"upBets"`
	DownBets    int       `json:"downBets"`
	PlatformCut string    `json:"platformCut"`
	PrizePool   string    `json:"prizePool"`
}

type PlaceBetResponse struct {
	Bet       BetResponse   `json:"bet"`
	Round     RoundResponse `json:"round"`
	Available string        `json:"available"`
	FirstBet  bool          `json:"firstBet"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromBet(b *model.Bet) BetResponse {
	return BetResponse{
		BetID:      b.ID.String(),
		RoundID:    b.RoundID.String(),
		UserID:     b.UserID,
		Prediction: string(b.Prediction),
		Amount:     b.TotalAmount.StringFixed(2),
		Fee:        b.FeeAmount.StringFixed(2),
		Stake:      b.StakeAmount.StringFixed(2),
		Result:     string(b.Result),
		Payout:     b.Payout.StringFixed(2),
		Profit:     b.Profit.StringFixed(2),
		CreatedAt:  b.CreatedAt,
		SettledAt:  b.SettledAt,
	}
}

func FromRound(r *model.Round) RoundResponse {
	out := RoundResponse{
		RoundID:     r.ID.String(),
		Seq:         r.Seq,
		Status:      string(r.Status),
		StartTime:   r.StartTime,
		LockTime:    r.LockTime,
		EndTime:     r.EndTime,
		StartPrice:  priceOrEmpty(r.StartPrice),
		EndPrice:    priceOrEmpty(r.EndPrice),
		UpPool:      r.UpStakeTotal.StringFixed(2),
		DownPool:    r.DownStakeTotal.StringFixed(2),
		UpBets:      r.UpBetCount,
		DownBets:    r.DownBetCount,
		PlatformCut: r.PlatformCut.StringFixed(2),
		PrizePool:   r.PrizePool.StringFixed(2),
	}
	if r.Result != nil {
		out.Result = string(*r.Result)
	}
	return out
}

func priceOrEmpty(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}
