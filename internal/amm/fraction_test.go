package amm

import (
	"errors"
	"math/big"
	"testing"
)

func TestFractionValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       Fraction
		wantErr error
	}{
		{name: "default slippage", f: DefaultSlippage},
		{name: "zero tolerance", f: Fraction{Num: 0, Den: 1}},
		{name: "half", f: Fraction{Num: 1, Den: 2}},
		{name: "zero denominator", f: Fraction{Num: 1, Den: 0}, wantErr: ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}

	// One or above is rejected even with a nonzero denominator.
	if err := (Fraction{Num: 5, Den: 5}).Validate(); err == nil {
		t.Error("Validate() accepted tolerance of exactly 1")
	}
	if err := (Fraction{Num: 7, Den: 5}).Validate(); err == nil {
		t.Error("Validate() accepted tolerance above 1")
	}
}

func TestFractionApplyFloor(t *testing.T) {
	tests := []struct {
		name string
		f    Fraction
		x    *big.Int
		want *big.Int
	}{
		{
			name: "default slippage on round amount",
			f:    DefaultSlippage,
			x:    big.NewInt(1_000_000),
			want: big.NewInt(999_000),
		},
		{
			name: "rounds toward zero",
			f:    DefaultSlippage,
			x:    big.NewInt(999),
			want: big.NewInt(998), // 999*999/1000 = 998.001
		},
		{
			name: "zero tolerance is identity",
			f:    Fraction{Num: 0, Den: 1},
			x:    big.NewInt(12345),
			want: big.NewInt(12345),
		},
		{
			name: "one wei with nonzero tolerance floors to zero",
			f:    DefaultSlippage,
			x:    big.NewInt(1),
			want: big.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.f.ApplyFloor(tt.x)
			if got.Cmp(tt.want) != 0 {
				t.Errorf("ApplyFloor(%s) = %s, want %s", tt.x, got, tt.want)
			}
		})
	}
}

func TestFractionApplyFloorStrictlyBelow(t *testing.T) {
	// For any positive amount a nonzero tolerance must tighten the floor,
	// or slippage protection silently becomes a no-op.
	f := DefaultSlippage
	for _, x := range []*big.Int{
		big.NewInt(1),
		big.NewInt(1000),
		big.NewInt(1_000_001),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
	} {
		if got := f.ApplyFloor(x); got.Cmp(x) >= 0 {
			t.Errorf("ApplyFloor(%s) = %s, not strictly below input", x, got)
		}
	}
}

func TestParseFraction(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Fraction
		wantErr bool
	}{
		{name: "default", in: "1/1000", want: Fraction{Num: 1, Den: 1000}},
		{name: "half percent", in: "5/1000", want: Fraction{Num: 5, Den: 1000}},
		{name: "zero", in: "0/1", want: Fraction{Num: 0, Den: 1}},
		{name: "garbage", in: "not-a-fraction", wantErr: true},
		{name: "missing denominator", in: "5", wantErr: true},
		{name: "zero denominator", in: "1/0", wantErr: true},
		{name: "at least one", in: "3/2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFraction(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseFraction(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFraction(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFraction(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFractionString(t *testing.T) {
	if got := DefaultSlippage.String(); got != "1/1000" {
		t.Errorf("String() = %q, want %q", got, "1/1000")
	}
}
