package dto

type DepositRequest struct {
	UserID      string `json:"userId" validate:"required,max=64"`
	Amount      string `json:"amount" validate:"required,numeric"`
	ExternalRef string `json:"external_ref,omitempty" validate:"max=128"` // referência do pagamento, vai para o extrato
}
