package parties

import "time"

// Kinds of party the business tracks.
const (
	KindCustomer = "customer"
	KindSupplier = "supplier"
	KindCarrier  = "carrier"
)

// Table is the audited table name.
const Table = "parties"

// Party represents a customer, supplier or carrier.
type Party struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the editable fields of a party.
type Input struct {
	Kind    string `json:"kind" validate:"required,oneof=customer supplier carrier"`
	Name    string `json:"name" validate:"required,max=200"`
	TaxID   string `json:"tax_id" validate:"omitempty,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

// ListFilters narrows List.
type ListFilters struct {
	Kind   string
	Search string
	Page   int
	Limit  int
}

func (in Input) apply(p Party) Party {
	p.Kind = in.Kind
	p.Name = in.Name
	p.TaxID = in.TaxID
	p.Email = in.Email
	p.Phone = in.Phone
	p.Address = in.Address
	return p
}
