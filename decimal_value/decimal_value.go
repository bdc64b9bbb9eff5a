package decimal_value

import (
	"github.com/shopspring/decimal"
)

// DecimalOpt is a decimal which may be explicitly absent. The zero value is
// absent, so struct literals that leave an optional amount out behave as
// "not provided" rather than as a real zero amount.
type DecimalOpt struct {
	dec     decimal.Decimal
	present bool
}

var Null = DecimalOpt{}

func New(value decimal.Decimal) DecimalOpt {
	return DecimalOpt{dec: value, present: true}
}

func NewFromInt(value int64) DecimalOpt {
	return New(decimal.NewFromInt(value))
}

func NewFromString(value string) (DecimalOpt, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Null, err
	}
	return New(d), nil
}

func RequireFromString(value string) DecimalOpt {
	return New(decimal.RequireFromString(value))
}

func (d DecimalOpt) Present() bool {
	return d.present
}

func (d DecimalOpt) IsNull() bool {
	return !d.present
}

// Decimal returns the contained value, or the zero decimal when absent.
func (d DecimalOpt) Decimal() decimal.Decimal {
	return d.dec
}

func (d DecimalOpt) Equal(d2 DecimalOpt) bool {
	if d.present != d2.present {
		return false
	}
	if !d.present {
		return true
	}
	return d.dec.Equal(d2.dec)
}

func (d DecimalOpt) IsZero() bool {
	if !d.present {
		return false
	}
	return d.dec.IsZero()
}

func (d DecimalOpt) String() string {
	if !d.present {
		return "NaN"
	}
	return d.dec.String()
}

func (d DecimalOpt) StringFixed(places int32) string {
	if !d.present {
		return "NaN"
	}
	return d.dec.StringFixed(places)
}
