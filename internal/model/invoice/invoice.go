package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LineItem is one billable row of an invoice.
type LineItem struct {
	Name      string  `json:"name" jsonschema:"description=Short description of the work or part" validate:"required"`
	Qty       float64 `json:"qty" jsonschema:"description=Quantity (hours for labor)" validate:"gt=0"`
	UnitPrice float64 `json:"unitPrice" jsonschema:"description=Price per unit" validate:"gte=0"`
}

// Invoice is the finished document handed back to the caller. Signature
// fields stay null until the customer signs in the capture UI.
type Invoice struct {
	InvoiceID         string     `json:"invoiceId" jsonschema:"description=Use the provided invoice id"`
	Date              string     `json:"date" jsonschema:"description=Use the provided date"`
	TimeWindow        string     `json:"timeWindow" jsonschema:"description=Use the provided time window"`
	Client            string     `json:"client" jsonschema:"description=Customer name"`
	Address           string     `json:"address" jsonschema:"description=Service address"`
	Items             []LineItem `json:"items" jsonschema:"description=Logical breakdown of labor and parts" validate:"required,min=1,dive"`
	Subtotal          float64    `json:"subtotal" validate:"gte=0"`
	Tax               float64    `json:"tax" validate:"gte=0"`
	Total             float64    `json:"total" validate:"gte=0"`
	Terms             string     `json:"terms"`
	PaymentMethods    []string   `json:"paymentMethods"`
	ContractorLicense string     `json:"contractorLicense"`
	Warranty          string     `json:"warranty"`
	CustomerSignature *string    `json:"customerSignature" jsonschema:"description=Always null"`
	SignedAt          *string    `json:"signedAt" jsonschema:"description=Always null"`
	Summary           string     `json:"summary" jsonschema:"description=One paragraph summary of the work performed"`
}

// Defaults fill the policy fields the model left blank.
type Defaults struct {
	Terms             string
	ContractorLicense string
	Warranty          string
	PaymentMethods    []string
}

// Stamp carries the server-owned fields of an invoice.
type Stamp struct {
	InvoiceID  string
	Date       string
	TimeWindow string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims free-text fields in place.
func (inv *Invoice) Normalize() {
	inv.Client = strings.TrimSpace(inv.Client)
	inv.Address = strings.TrimSpace(inv.Address)
	inv.Terms = strings.TrimSpace(inv.Terms)
	inv.ContractorLicense = strings.TrimSpace(inv.ContractorLicense)
	inv.Warranty = strings.TrimSpace(inv.Warranty)
	inv.Summary = strings.TrimSpace(inv.Summary)
	for i := range inv.Items {
		inv.Items[i].Name = strings.TrimSpace(inv.Items[i].Name)
	}
	methods := inv.PaymentMethods[:0]
	for _, m := range inv.PaymentMethods {
		if m = strings.TrimSpace(m); m != "" {
			methods = append(methods, m)
		}
	}
	inv.PaymentMethods = methods
}

// Validate reports the first group of schema violations as a single error.
func (inv *Invoice) Validate() error {
	err := validate.Struct(inv)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid invoice: %s", strings.Join(msgs, "; "))
}

// ApplyStamp overwrites the identity fields and clears signature state.
func (inv *Invoice) ApplyStamp(s Stamp) {
	inv.InvoiceID = s.InvoiceID
	inv.Date = s.Date
	inv.TimeWindow = s.TimeWindow
	inv.CustomerSignature = nil
	inv.SignedAt = nil
}

// ApplyDefaults fills blank policy fields.
func (inv *Invoice) ApplyDefaults(d Defaults) {
	if inv.Terms == "" {
		inv.Terms = d.Terms
	}
	if inv.ContractorLicense == "" {
		inv.ContractorLicense = d.ContractorLicense
	}
	if inv.Warranty == "" {
		inv.Warranty = d.Warranty
	}
	if len(inv.PaymentMethods) == 0 {
		inv.PaymentMethods = append([]string(nil), d.PaymentMethods...)
	}
}
