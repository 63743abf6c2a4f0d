package clinic

import (
	"time"

	"github.com/google/uuid"

	"github.com/vduzgezen/lumera-dental-api/internal/domain/pricing"
)

// Clinic is a customer organization. Its price tier selects the price list
// applied to every case billed to it.
type Clinic struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	Name          string       `db:"name" json:"name"`
	PriceTier     pricing.Tier `db:"price_tier" json:"price_tier"`
	BillingDay    int          `db:"billing_day" json:"billing_day"`
	PaymentTerms  string       `db:"payment_terms" json:"payment_terms"`
	BankName      *string      `db:"bank_name" json:"bank_name,omitempty"`
	BankAccount   *string      `db:"bank_account" json:"bank_account,omitempty"`
	BankRouting   *string      `db:"bank_routing" json:"bank_routing,omitempty"`
	AddressID     *uuid.UUID   `db:"address_id" json:"address_id,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
