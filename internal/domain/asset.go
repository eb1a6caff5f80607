package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── Symbols & Assets ───────────────────────────────────────────────────────
// Amounts are int64 counts of the smallest denomination. A symbol with
// precision 4 renders 1_000_000 as "100.0000".

// MaxPrecision bounds symbol precision so Unit() fits in int64.
const MaxPrecision = 18

// Symbol identifies a token registry: an uppercase code plus decimal precision.
type Symbol struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
}

// NewSymbol builds a symbol. Use Valid to check it.
func NewSymbol(code string, precision uint8) Symbol {
	return Symbol{Code: code, Precision: precision}
}

// Valid reports whether the code is 1–7 uppercase letters and the precision
// is within MaxPrecision.
func (s Symbol) Valid() bool {
	if len(s.Code) == 0 || len(s.Code) > 7 || s.Precision > MaxPrecision {
		return false
	}
	for _, r := range s.Code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Unit returns 10^precision: the base-unit count of one whole token.
func (s Symbol) Unit() int64 {
	u := int64(1)
	for i := uint8(0); i < s.Precision; i++ {
		u *= 10
	}
	return u
}

// String formats as "precision,CODE".
func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// MarshalText implements encoding.TextMarshaler.
func (s Symbol) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Symbol) UnmarshalText(b []byte) error {
	sym, err := ParseSymbol(string(b))
	if err != nil {
		return err
	}
	*s = sym
	return nil
}

// ParseSymbol parses "4,GOV".
func ParseSymbol(s string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("symbol %q: want precision,CODE: %w", s, ErrPolicyViolation)
	}
	p, err := strconv.ParseUint(prec, 10, 8)
	if err != nil {
		return Symbol{}, fmt.Errorf("symbol %q precision: %w", s, ErrPolicyViolation)
	}
	sym := Symbol{Code: code, Precision: uint8(p)}
	if !sym.Valid() {
		return Symbol{}, fmt.Errorf("symbol %q: %w", s, ErrPolicyViolation)
	}
	return sym, nil
}

// Asset is an amount denominated in a symbol.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// NewAsset builds an asset from base units.
func NewAsset(amount int64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// IsZero reports whether the amount is zero.
func (a Asset) IsZero() bool { return a.Amount == 0 }

// String formats as "100.0000 GOV".
func (a Asset) String() string {
	unit := a.Symbol.Unit()
	sign := ""
	amt := a.Amount
	if amt < 0 {
		sign = "-"
		amt = -amt
	}
	if a.Symbol.Precision == 0 {
		return fmt.Sprintf("%s%d %s", sign, amt, a.Symbol.Code)
	}
	return fmt.Sprintf("%s%d.%0*d %s", sign, amt/unit, int(a.Symbol.Precision), amt%unit, a.Symbol.Code)
}

// MarshalText implements encoding.TextMarshaler.
func (a Asset) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(b []byte) error {
	parsed, err := ParseAsset(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAsset parses "100.0000 GOV". The number of fractional digits sets the
// symbol precision.
func ParseAsset(s string) (Asset, error) {
	num, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("asset %q: want \"amount CODE\": %w", s, ErrPolicyViolation)
	}
	neg := strings.HasPrefix(num, "-")
	num = strings.TrimPrefix(num, "-")

	whole, frac, _ := strings.Cut(num, ".")
	sym := Symbol{Code: strings.TrimSpace(code), Precision: uint8(len(frac))}
	if len(frac) > MaxPrecision || !sym.Valid() {
		return Asset{}, fmt.Errorf("asset %q symbol: %w", s, ErrPolicyViolation)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q amount: %w", s, ErrPolicyViolation)
	}
	var f int64
	if frac != "" {
		if f, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return Asset{}, fmt.Errorf("asset %q fraction: %w", s, ErrPolicyViolation)
		}
	}
	unit := sym.Unit()
	if w > (math.MaxInt64-f)/unit {
		return Asset{}, fmt.Errorf("asset %q: %w", s, ErrArithmetic)
	}
	amt := w*unit + f
	if neg {
		amt = -amt
	}
	return Asset{Amount: amt, Symbol: sym}, nil
}

// Add returns a+b. Symbols must match; int64 overflow is an arithmetic error.
func (a Asset) Add(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("add %s to %s: symbol mismatch: %w", b, a, ErrPolicyViolation)
	}
	sum, err := AddAmounts(a.Amount, b.Amount)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Amount: sum, Symbol: a.Symbol}, nil
}

// Sub returns a-b. Symbols must match.
func (a Asset) Sub(b Asset) (Asset, error) {
	if a.Symbol != b.Symbol {
		return Asset{}, fmt.Errorf("sub %s from %s: symbol mismatch: %w", b, a, ErrPolicyViolation)
	}
	if b.Amount == math.MinInt64 {
		return Asset{}, ErrArithmetic
	}
	diff, err := AddAmounts(a.Amount, -b.Amount)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Amount: diff, Symbol: a.Symbol}, nil
}

// AddAmounts adds two base-unit amounts, failing on int64 overflow.
func AddAmounts(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%d + %d overflows: %w", a, b, ErrArithmetic)
	}
	return a + b, nil
}
