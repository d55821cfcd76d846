package individual

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToJSON parses raw fully and renders it as JSON. A successful call never
// returns an empty string.
func ToJSON(raw []byte) (string, error) {
	ind, err := Parse(raw)
	if err != nil {
		return "", err
	}
	if err := ind.FinishParsing(); err != nil {
		return "", err
	}
	return ind.ToJSON()
}

// subjectKey holds the subject uri in JSON output.
const subjectKey = "@"

// ToJSON renders a fully parsed Individual as a JSON object. The subject is
// stored under "@"; predicates follow in encoded order.
func (ind *Individual) ToJSON() (string, error) {
	if !ind.IsMaterialized() {
		return "", ErrNotMaterialized
	}
	if ind.uri == "" {
		return "", fmt.Errorf("%w: empty subject", ErrConversion)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"` + subjectKey + `":`)
	if err := writeJSON(&buf, ind.uri); err != nil {
		return "", err
	}

	for _, pred := range ind.predicates {
		if pred == subjectKey {
			return "", fmt.Errorf("%w: predicate %q clashes with the subject key", ErrConversion, pred)
		}
		buf.WriteByte(',')
		if err := writeJSON(&buf, pred); err != nil {
			return "", err
		}
		buf.WriteString(`:[`)
		for i, r := range ind.resources[pred] {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, err := resourceJSON(r)
			if err != nil {
				return "", fmt.Errorf("%w: predicate %q: %v", ErrConversion, pred, err)
			}
			if err := writeJSON(&buf, v); err != nil {
				return "", err
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')

	return buf.String(), nil
}

type jsonResource struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	Lang string `json:"lang,omitempty"`
}

func resourceJSON(r Resource) (jsonResource, error) {
	out := jsonResource{Type: r.Type.String()}

	switch r.Type {
	case TypeURI:
		out.Data = r.Str
	case TypeString:
		out.Data = r.Str
		out.Lang = r.Lang.String()
	case TypeInteger:
		out.Data = r.Int
	case TypeDatetime:
		out.Data = formatDatetime(r.Int)
	case TypeDecimal:
		s, err := formatDecimal(r.Mantissa, r.Exponent)
		if err != nil {
			return out, err
		}
		out.Data = s
	case TypeBoolean:
		out.Data = r.Bool
	case TypeBinary:
		out.Data = r.Bytes
	default:
		return out, fmt.Errorf("unknown resource type %d", int64(r.Type))
	}

	return out, nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConversion, err)
	}
	buf.Write(data)
	return nil
}
