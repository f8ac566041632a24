package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eino-contrib/jsonschema"

	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
)

type questionsData struct {
	Questions       []string `json:"questions" jsonschema:"description=Specific clarifying questions about the work,minItems=1"`
	CurrentQuestion string   `json:"currentQuestion" jsonschema:"description=The first question to ask"`
}

type questionsResponse struct {
	Type string        `json:"type" jsonschema:"enum=questions"`
	Data questionsData `json:"data"`
}

type invoiceResponse struct {
	Type string          `json:"type" jsonschema:"enum=invoice"`
	Data invoice.Invoice `json:"data"`
}

// PromptOptions carries the invoice policy the model should follow.
type PromptOptions struct {
	Defaults    invoice.Defaults
	TaxRateHint string
}

func reflectSchema(v any) (string, error) {
	raw, err := json.MarshalIndent(jsonschema.Reflect(v), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal response schema: %w", err)
	}
	return string(raw), nil
}

// BuildSystemPrompt renders the fixed instructions, including the JSON
// schema of both response shapes.
func BuildSystemPrompt(opts PromptOptions) (string, error) {
	questionsSchema, err := reflectSchema(&questionsResponse{})
	if err != nil {
		return "", err
	}
	invoiceSchema, err := reflectSchema(&invoiceResponse{})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are InvoiceBot. You turn a contractor's spoken description of completed work into an invoice.\n")
	b.WriteString("You MUST respond with ONLY one valid JSON object, no Markdown and no other text.\n\n")
	b.WriteString("There are two possible response formats.\n\n")
	b.WriteString("1. Questions, when important details about the work are missing:\n")
	b.WriteString(questionsSchema)
	b.WriteString("\n\n2. A complete invoice:\n")
	b.WriteString(invoiceSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- On the first description, decide what is missing and ask specific questions about the work being discussed, e.g. \"Which rooms need the HVAC repair work?\" or \"What is the square footage of the area that needs painting?\". Set currentQuestion to the first question.\n")
	b.WriteString("- For everything else, make reasonable assumptions instead of asking.\n")
	fmt.Fprintf(&b, "- Default terms: %q. Default contractor license: %q. Default warranty: %q.\n",
		opts.Defaults.Terms, opts.Defaults.ContractorLicense, opts.Defaults.Warranty)
	if len(opts.Defaults.PaymentMethods) > 0 {
		fmt.Fprintf(&b, "- Payment methods: %s.\n", strings.Join(opts.Defaults.PaymentMethods, ", "))
	}
	if opts.TaxRateHint != "" {
		fmt.Fprintf(&b, "- Calculate tax at local rates (around %s).\n", opts.TaxRateHint)
	}
	b.WriteString("- Include a reasonable markup and break the work into logical line items.\n")
	b.WriteString("- When answers to previous questions are provided, combine them with the original description to produce the invoice.\n")
	b.WriteString("- Use the invoiceId, date and timeWindow values you are given.\n")
	b.WriteString("- Leave customerSignature and signedAt as null.")
	return b.String(), nil
}

// BuildUserPrompt renders the per-call context and fixed metadata.
func BuildUserPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Context)
	b.WriteString("\n\nUse these values for the invoice:\n")
	fmt.Fprintf(&b, "- invoiceId: %s\n", req.Stamp.InvoiceID)
	fmt.Fprintf(&b, "- date: %s\n", req.Stamp.Date)
	fmt.Fprintf(&b, "- timeWindow: %s", req.Stamp.TimeWindow)
	if req.Stage == StageFinalize {
		b.WriteString("\n\nAll clarifying questions have been answered. Respond with the invoice format only; do not ask further questions.")
	}
	return b.String()
}
