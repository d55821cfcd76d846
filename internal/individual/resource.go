package individual

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType tags the kind of a resource value.
type DataType int64

// Resource value kinds. The numbers are part of the binary format.
const (
	TypeURI      DataType = 1
	TypeString   DataType = 2
	TypeInteger  DataType = 4
	TypeDatetime DataType = 8
	TypeDecimal  DataType = 32
	TypeBoolean  DataType = 64
	TypeBinary   DataType = 128
)

// String returns the name used for the type in JSON output.
func (t DataType) String() string {
	switch t {
	case TypeURI:
		return "Uri"
	case TypeString:
		return "String"
	case TypeInteger:
		return "Integer"
	case TypeDatetime:
		return "Datetime"
	case TypeDecimal:
		return "Decimal"
	case TypeBoolean:
		return "Boolean"
	case TypeBinary:
		return "Binary"
	default:
		return fmt.Sprintf("DataType(%d)", int64(t))
	}
}

// Lang is the language tag of a string resource.
type Lang int64

// Language tags.
const (
	LangNone Lang = 0
	LangRU   Lang = 1
	LangEN   Lang = 2
)

// String returns the tag name, or "" for LangNone.
func (l Lang) String() string {
	switch l {
	case LangRU:
		return "RU"
	case LangEN:
		return "EN"
	case LangNone:
		return ""
	default:
		return strconv.FormatInt(int64(l), 10)
	}
}

// Resource is one typed value of a predicate.
type Resource struct {
	Type DataType

	// Str holds URI and String values
	Str  string
	Lang Lang

	// Int holds Integer values and Datetime as Unix seconds
	Int int64

	// Mantissa and Exponent hold Decimal values as Mantissa * 10^Exponent
	Mantissa int64
	Exponent int64

	Bool  bool
	Bytes []byte
}

// maxExponent bounds decimal exponents to keep formatted values small.
const maxExponent = 64

// formatDecimal renders mantissa * 10^exponent without going through float.
func formatDecimal(mantissa, exponent int64) (string, error) {
	if exponent > maxExponent || exponent < -maxExponent {
		return "", fmt.Errorf("decimal exponent %d out of range", exponent)
	}

	digits := strconv.FormatInt(mantissa, 10)
	sign := ""
	if mantissa < 0 {
		sign, digits = "-", digits[1:]
	}

	if exponent >= 0 {
		if mantissa == 0 {
			return "0", nil
		}
		return sign + digits + strings.Repeat("0", int(exponent)), nil
	}

	scale := int(-exponent)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:], nil
}
