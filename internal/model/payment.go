package model

import "time"

type PaymentMethod string

const (
	MethodPix  PaymentMethod = "pix"
	MethodCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodPix || m == MethodCard
}

// SessionState is the lifecycle state of a funding attempt.
// Completed and Failed are terminal.
type SessionState string

const (
	StateMethodSelection    SessionState = "method_selection"
	StateSubmitting         SessionState = "submitting"
	StateAwaitingSettlement SessionState = "awaiting_settlement"
	StateCompleted          SessionState = "completed"
	StateFailed             SessionState = "failed"
)

func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CardDetails carries the raw card form input. Every field is required
// before submission; there is no partial submission.
type CardDetails struct {
	HolderName    string `json:"holder_name"`
	Number        string `json:"number"`
	ExpiryMonth   string `json:"expiry_month"`
	ExpiryYear    string `json:"expiry_year"`
	CCV           string `json:"ccv"`
	CpfCnpj       string `json:"cpf_cnpj"`
	PostalCode    string `json:"postal_code"`
	AddressNumber string `json:"address_number"`
	Phone         string `json:"phone"`
}

// PixCharge is the instant-transfer payload shown to the user: an opaque
// reference plus the copy-and-paste code derived from it. Read-only once
// generated; the code must survive a clipboard round-trip byte for byte.
type PixCharge struct {
	Reference string    `json:"reference"`
	Code      string    `json:"copia_e_cola"`
	ExpiresAt time.Time `json:"expires_at"`
}
