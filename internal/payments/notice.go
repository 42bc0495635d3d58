package payments

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
)

// callbackSchema accepts any gateway payload that names the payment by
// gateway reference, merchant reference or both.
const callbackSchema = `{
  "type": "object",
  "properties": {
    "reference": {"type": ["string", "null"]},
    "merchant_ref": {"type": ["string", "null"]},
    "status": {"type": ["string", "null"]},
    "payment_method": {"type": ["string", "null"]},
    "payment_method_code": {"type": ["string", "null"]}
  },
  "anyOf": [
    {"required": ["reference"], "properties": {"reference": {"type": "string", "minLength": 1}}},
    {"required": ["merchant_ref"], "properties": {"merchant_ref": {"type": "string", "minLength": 1}}}
  ]
}`

var callbackSchemaLoader = gojsonschema.NewStringLoader(callbackSchema)

type callbackPayload struct {
	Reference         string `json:"reference"`
	MerchantRef       string `json:"merchant_ref"`
	Status            string `json:"status"`
	PaymentMethod     string `json:"payment_method"`
	PaymentMethodCode string `json:"payment_method_code"`
}

// ParseNotice validates a callback body and extracts the payment notice.
func ParseNotice(body []byte) (domain.PaymentNotice, error) {
	if !json.Valid(body) {
		return domain.PaymentNotice{}, apperr.New(apperr.KindBadRequest, "invalid JSON payload")
	}

	result, err := gojsonschema.Validate(callbackSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return domain.PaymentNotice{}, apperr.Wrap(apperr.KindBadRequest, "invalid payload", err)
	}
	if !result.Valid() {
		return domain.PaymentNotice{}, apperr.New(apperr.KindBadRequest, "missing reference or merchant_ref")
	}

	var p callbackPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.PaymentNotice{}, apperr.Wrap(apperr.KindBadRequest, "invalid payload", err)
	}

	method := p.PaymentMethod
	if method == "" {
		method = p.PaymentMethodCode
	}

	return domain.PaymentNotice{
		Reference:     strings.TrimSpace(p.Reference),
		MerchantRef:   strings.TrimSpace(p.MerchantRef),
		Status:        p.Status,
		PaymentMethod: method,
		Payload:       json.RawMessage(body),
	}, nil
}
