package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	JSON json.RawMessage `json:"json"`
}

type questionList struct {
	Questions []string `validate:"required,min=1,dive,required"`
}

func contractErr(raw, format string, args ...any) error {
	return &ContractError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// stripFences removes a surrounding Markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isNull(raw []byte) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

// ParseResult decodes raw model output into a Result. Any deviation from the
// response contract yields a *ContractError.
func ParseResult(content string) (*Result, error) {
	text := stripFences(content)
	if text == "" {
		return nil, contractErr(content, "empty response")
	}

	var env envelope
	if err := sonic.UnmarshalString(text, &env); err != nil {
		return nil, contractErr(content, "response is not a JSON object: %v", err)
	}
	// some providers wrap the object as {"json": {...}}
	if env.Type == "" && !isNull(env.JSON) {
		inner := env.JSON
		env = envelope{}
		if err := sonic.Unmarshal(inner, &env); err != nil {
			return nil, contractErr(content, "wrapped response is not a JSON object: %v", err)
		}
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(env.Type)))
	if kind == "" {
		return nil, contractErr(content, "response has no type")
	}
	if isNull(env.Data) {
		return nil, contractErr(content, "response has no data")
	}

	switch kind {
	case KindQuestions:
		return parseQuestions(content, env.Data)
	case KindInvoice:
		return parseInvoice(content, env.Data)
	default:
		return nil, contractErr(content, "unknown response type %q", env.Type)
	}
}

func parseQuestions(raw string, data []byte) (*Result, error) {
	var payload questionsData
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return nil, contractErr(raw, "malformed questions data: %v", err)
	}

	list := questionList{Questions: make([]string, 0, len(payload.Questions))}
	for _, q := range payload.Questions {
		list.Questions = append(list.Questions, strings.TrimSpace(q))
	}
	if err := validate.Struct(list); err != nil {
		return nil, contractErr(raw, "questions must be a non-empty list of non-blank strings")
	}

	current := strings.TrimSpace(payload.CurrentQuestion)
	if current == "" {
		current = list.Questions[0]
	}
	return &Result{
		Kind:            KindQuestions,
		Questions:       list.Questions,
		CurrentQuestion: current,
	}, nil
}

func parseInvoice(raw string, data []byte) (*Result, error) {
	var inv invoice.Invoice
	if err := sonic.Unmarshal(data, &inv); err != nil {
		return nil, contractErr(raw, "malformed invoice data: %v", err)
	}
	inv.Normalize()
	if err := inv.Validate(); err != nil {
		return nil, contractErr(raw, "%v", err)
	}
	return &Result{Kind: KindInvoice, Invoice: &inv}, nil
}
