package lending

import (
	"fmt"
	"math/big"
)

// wad is the shared 1e18 fixed-point scale applied to indexes, rates,
// factors and normalised monetary values.
var wad = big.NewInt(1_000_000_000_000_000_000)

// Fixed is a 1e18-scaled fixed-point number. Multiplication and division
// truncate toward zero, matching integer division, so rounding behaviour is
// auditable at every call site. The zero value is 0.
type Fixed struct {
	v *big.Int
}

// FixedOne is the multiplicative identity (1.0).
var FixedOne = FixedFromInt(1)

// NewFixed wraps a raw 1e18-scaled integer. The input is copied.
func NewFixed(raw *big.Int) Fixed {
	if raw == nil {
		return Fixed{}
	}
	return Fixed{v: new(big.Int).Set(raw)}
}

// FixedFromInt converts a whole number into fixed-point form.
func FixedFromInt(n int64) Fixed {
	return Fixed{v: new(big.Int).Mul(big.NewInt(n), wad)}
}

// FixedFromFrac builds the fixed-point value num/den, truncated.
func FixedFromFrac(num, den int64) Fixed {
	if den == 0 {
		return Fixed{}
	}
	v := new(big.Int).Mul(big.NewInt(num), wad)
	return Fixed{v: v.Quo(v, big.NewInt(den))}
}

// FixedFromBps converts basis points (1/10_000) into fixed-point form.
func FixedFromBps(bps uint64) Fixed {
	v := new(big.Int).Mul(new(big.Int).SetUint64(bps), wad)
	return Fixed{v: v.Quo(v, big.NewInt(10_000))}
}

func (f Fixed) raw() *big.Int {
	if f.v == nil {
		return new(big.Int)
	}
	return f.v
}

// Raw returns a copy of the underlying 1e18-scaled integer.
func (f Fixed) Raw() *big.Int {
	return new(big.Int).Set(f.raw())
}

// Add returns f + g.
func (f Fixed) Add(g Fixed) Fixed {
	return Fixed{v: new(big.Int).Add(f.raw(), g.raw())}
}

// Sub returns f - g.
func (f Fixed) Sub(g Fixed) Fixed {
	return Fixed{v: new(big.Int).Sub(f.raw(), g.raw())}
}

// Mul returns f * g, truncated toward zero.
func (f Fixed) Mul(g Fixed) Fixed {
	v := new(big.Int).Mul(f.raw(), g.raw())
	return Fixed{v: v.Quo(v, wad)}
}

// Div returns f / g, truncated toward zero. Division by zero yields zero,
// matching the index helpers.
func (f Fixed) Div(g Fixed) Fixed {
	den := g.raw()
	if den.Sign() == 0 {
		return Fixed{}
	}
	v := new(big.Int).Mul(f.raw(), wad)
	return Fixed{v: v.Quo(v, den)}
}

// MulAmount scales an integer amount by the fixed-point factor, truncated.
func (f Fixed) MulAmount(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || f.raw().Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(amount, f.raw())
	return v.Quo(v, wad)
}

// Cmp compares f against g with big.Int semantics.
func (f Fixed) Cmp(g Fixed) int { return f.raw().Cmp(g.raw()) }

// Sign reports the sign of the value.
func (f Fixed) Sign() int { return f.raw().Sign() }

// IsZero reports whether the value is exactly zero.
func (f Fixed) IsZero() bool { return f.raw().Sign() == 0 }

// Clone returns an independent copy.
func (f Fixed) Clone() Fixed { return NewFixed(f.raw()) }

// String renders the raw 1e18-scaled integer.
func (f Fixed) String() string { return f.raw().String() }

// MarshalJSON encodes the raw scaled integer as a decimal string so
// persisted records stay precise regardless of JSON number limits.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.raw().String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (f *Fixed) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("lending: invalid fixed-point literal %q", s)
	}
	f.v = v
	return nil
}

// scaleAmount grows or shrinks an amount by the ratio to/from, truncated.
// A zero from-index leaves the amount untouched so uninitialised snapshots
// cannot wipe a balance.
func scaleAmount(amount *big.Int, from, to Fixed) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int)
	}
	if from.raw().Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	v := new(big.Int).Mul(amount, to.raw())
	return v.Quo(v, from.raw())
}

// normalizeQuote converts an oracle quote carrying its own decimal scale
// into a 1e18 fixed-point price per asset unit.
func normalizeQuote(value *big.Int, decimals uint8) Fixed {
	if value == nil || value.Sign() <= 0 {
		return Fixed{}
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	v := new(big.Int).Mul(value, wad)
	return Fixed{v: v.Quo(v, scale)}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
