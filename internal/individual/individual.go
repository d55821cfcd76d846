// Package individual converts Individual records to JSON.
//
// An Individual is a msgpack-encoded subject with typed predicate values:
//
//	[uri, {predicate: [[type, value(, extra)], ...], ...}]
//
// Parse only splits the envelope and keeps each predicate's values as raw
// bytes. FinishParsing decodes every value; ToJSON refuses to render an
// Individual that has not been fully decoded.
package individual

import (
	"errors"
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"
)

var (
	// ErrParse indicates bytes that are not an Individual.
	ErrParse = errors.New("vqueue: failed to parse individual")

	// ErrConversion indicates an Individual that produced no JSON.
	ErrConversion = errors.New("vqueue: failed to convert individual to JSON")

	// ErrNotMaterialized indicates ToJSON on an Individual with raw predicates.
	ErrNotMaterialized = errors.New("vqueue: individual not fully parsed")
)

// Individual is a parsed subject with its predicates.
type Individual struct {
	uri        string
	predicates []string
	raw        map[string][]byte
	resources  map[string][]Resource
}

// Parse splits raw into the subject URI and undecoded predicate values.
// The Individual keeps references into raw.
func Parse(raw []byte) (*Individual, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}

	n, b, err := msgp.ReadArrayHeaderBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrParse, err)
	}
	if n != 2 {
		return nil, fmt.Errorf("%w: envelope has %d elements, want 2", ErrParse, n)
	}

	uri, b, err := readString(b)
	if err != nil {
		return nil, fmt.Errorf("%w: uri: %v", ErrParse, err)
	}

	count, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: predicates: %v", ErrParse, err)
	}

	ind := &Individual{
		uri:       uri,
		raw:       make(map[string][]byte, count),
		resources: make(map[string][]Resource, count),
	}
	for i := uint32(0); i < count; i++ {
		var pred string
		pred, b, err = readString(b)
		if err != nil {
			return nil, fmt.Errorf("%w: predicate %d: %v", ErrParse, i, err)
		}

		rest, err := msgp.Skip(b)
		if err != nil {
			return nil, fmt.Errorf("%w: predicate %q: %v", ErrParse, pred, err)
		}
		if _, dup := ind.raw[pred]; !dup {
			ind.predicates = append(ind.predicates, pred)
		}
		ind.raw[pred] = b[:len(b)-len(rest)]
		b = rest
	}

	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrParse, len(b))
	}

	return ind, nil
}

// URI returns the subject URI.
func (ind *Individual) URI() string {
	return ind.uri
}

// Predicates returns predicate names in encoded order.
func (ind *Individual) Predicates() []string {
	out := make([]string, len(ind.predicates))
	copy(out, ind.predicates)
	return out
}

// IsMaterialized reports whether every predicate has been decoded.
func (ind *Individual) IsMaterialized() bool {
	return len(ind.resources) == len(ind.predicates)
}

// Resources decodes and returns the values of one predicate.
func (ind *Individual) Resources(pred string) ([]Resource, error) {
	if res, ok := ind.resources[pred]; ok {
		return res, nil
	}
	raw, ok := ind.raw[pred]
	if !ok {
		return nil, nil
	}

	res, err := parseResources(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: predicate %q: %v", ErrParse, pred, err)
	}
	ind.resources[pred] = res
	return res, nil
}

// FinishParsing decodes every predicate.
func (ind *Individual) FinishParsing() error {
	for _, pred := range ind.predicates {
		if _, err := ind.Resources(pred); err != nil {
			return err
		}
	}
	return nil
}

func parseResources(b []byte) ([]Resource, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}

	out := make([]Resource, 0, n)
	for i := uint32(0); i < n; i++ {
		var r Resource
		r, b, err = parseResource(b)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseResource(b []byte) (Resource, []byte, error) {
	var r Resource

	size, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return r, nil, err
	}
	if size < 2 || size > 3 {
		return r, nil, fmt.Errorf("resource has %d elements", size)
	}

	t, b, err := readInt(b)
	if err != nil {
		return r, nil, fmt.Errorf("type: %w", err)
	}
	r.Type = DataType(t)

	switch r.Type {
	case TypeURI:
		r.Str, b, err = readString(b)
	case TypeString:
		r.Str, b, err = readString(b)
		if err == nil && size == 3 {
			var lang int64
			lang, b, err = readInt(b)
			r.Lang = Lang(lang)
		}
	case TypeInteger, TypeDatetime:
		r.Int, b, err = readInt(b)
	case TypeDecimal:
		if size != 3 {
			return r, nil, fmt.Errorf("decimal needs mantissa and exponent")
		}
		r.Mantissa, b, err = readInt(b)
		if err == nil {
			r.Exponent, b, err = readInt(b)
		}
	case TypeBoolean:
		r.Bool, b, err = msgp.ReadBoolBytes(b)
	case TypeBinary:
		var v []byte
		v, b, err = msgp.ReadBytesZC(b)
		r.Bytes = v
	default:
		return r, nil, fmt.Errorf("unknown resource type %d", t)
	}
	if err != nil {
		return r, nil, fmt.Errorf("%s value: %w", r.Type, err)
	}

	// Extra elements on types that do not use them are skipped
	if size == 3 && (r.Type == TypeURI || r.Type == TypeInteger || r.Type == TypeDatetime || r.Type == TypeBoolean || r.Type == TypeBinary) {
		if b, err = msgp.Skip(b); err != nil {
			return r, nil, err
		}
	}

	return r, b, nil
}

// readString accepts both str and bin encodings.
func readString(b []byte) (string, []byte, error) {
	if msgp.NextType(b) == msgp.BinType {
		v, o, err := msgp.ReadBytesZC(b)
		return string(v), o, err
	}
	return msgp.ReadStringBytes(b)
}

// readInt accepts both signed and unsigned encodings.
func readInt(b []byte) (int64, []byte, error) {
	if msgp.NextType(b) == msgp.UintType {
		u, o, err := msgp.ReadUint64Bytes(b)
		if err != nil {
			return 0, nil, err
		}
		if u > 1<<63-1 {
			return 0, nil, fmt.Errorf("integer %d overflows int64", u)
		}
		return int64(u), o, nil
	}
	return msgp.ReadInt64Bytes(b)
}

func formatDatetime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
