package labregistry

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Classification is the boundary a reading falls in, or Unclassified.
type Classification string

const (
	ClassNormal       Classification = "Normal"
	ClassAbnormal     Classification = "Abnormal"
	ClassInvalid      Classification = "Invalid"
	ClassUnclassified Classification = "Unclassified"
)

var classifyOrder = []BoundaryType{BoundaryNormal, BoundaryAbnormal, BoundaryInvalid}

var errBadNumber = errors.New("not a number")

// ParseMeasurement reads a plain decimal, a fraction "a/b" or a ratio "a:b".
func ParseMeasurement(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errBadNumber
	}
	for _, sep := range []string{"/", ":"} {
		num, den, ok := strings.Cut(s, sep)
		if !ok {
			continue
		}
		n, err := decimal.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(strings.TrimSpace(den))
		if err != nil {
			return decimal.Zero, err
		}
		if d.IsZero() {
			return decimal.Zero, errBadNumber
		}
		return n.Div(d), nil
	}
	return decimal.NewFromString(s)
}

// Contains reports whether v lies within the boundary. Bounds are inclusive,
// an empty bound is open and a boundary with neither bound matches nothing.
func (b *Boundary) Contains(v decimal.Decimal) bool {
	lower := strings.TrimSpace(b.LowerBound)
	upper := strings.TrimSpace(b.UpperBound)
	if lower == "" && upper == "" {
		return false
	}
	if lower != "" {
		lo, err := ParseMeasurement(lower)
		if err != nil || v.LessThan(lo) {
			return false
		}
	}
	if upper != "" {
		hi, err := ParseMeasurement(upper)
		if err != nil || v.GreaterThan(hi) {
			return false
		}
	}
	return true
}

// Classify matches value against the parameter's boundaries, trying Normal
// ranges first, then Abnormal, then Invalid.
func Classify(ptype ParameterType, boundaries []*Boundary, value string) Classification {
	if !ptype.Numeric() {
		return ClassUnclassified
	}
	v, err := ParseMeasurement(value)
	if err != nil {
		return ClassUnclassified
	}
	for _, bt := range classifyOrder {
		for _, b := range boundaries {
			if b.Type == bt && b.Contains(v) {
				return Classification(bt)
			}
		}
	}
	return ClassUnclassified
}
