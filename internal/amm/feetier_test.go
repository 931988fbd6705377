package amm

import (
	"errors"
	"testing"
)

func TestSpacingFor(t *testing.T) {
	tests := []struct {
		name    string
		fee     uint32
		want    int
		wantErr bool
	}{
		{name: "low tier", fee: FeeLow, want: 10},
		{name: "medium tier", fee: FeeMedium, want: 60},
		{name: "high tier", fee: FeeHigh, want: 200},
		{name: "zero fee", fee: 0, wantErr: true},
		{name: "unsupported 100", fee: 100, wantErr: true},
		{name: "unsupported 2500", fee: 2500, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SpacingFor(tt.fee)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFeeTier) {
					t.Errorf("SpacingFor(%d) error = %v, want ErrUnsupportedFeeTier", tt.fee, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SpacingFor(%d) error = %v", tt.fee, err)
			}
			if got != tt.want {
				t.Errorf("SpacingFor(%d) = %d, want %d", tt.fee, got, tt.want)
			}
		})
	}
}

func TestSupportedFeeTiers(t *testing.T) {
	tiers := SupportedFeeTiers()
	if len(tiers) != 3 {
		t.Fatalf("SupportedFeeTiers() returned %d tiers, want 3", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i] <= tiers[i-1] {
			t.Errorf("tiers not ascending: %v", tiers)
		}
	}
	for _, fee := range tiers {
		if _, err := SpacingFor(fee); err != nil {
			t.Errorf("SpacingFor(%d) error = %v", fee, err)
		}
	}
}

func TestRangeAround(t *testing.T) {
	tests := []struct {
		name    string
		tick    int
		spacing int
		want    PositionRange
	}{
		{name: "aligned tick", tick: 120, spacing: 60, want: PositionRange{Lower: 60, Upper: 180}},
		{name: "snaps before widening", tick: 91, spacing: 60, want: PositionRange{Lower: 60, Upper: 180}},
		{name: "negative tick", tick: -200310, spacing: 60, want: PositionRange{Lower: -200340, Upper: -200220}},
		{name: "around zero", tick: 0, spacing: 10, want: PositionRange{Lower: -10, Upper: 10}},
		{name: "clamped at minimum", tick: MinTick, spacing: 60, want: PositionRange{Lower: -887220, Upper: -887160}},
		{name: "clamped at maximum", tick: MaxTick, spacing: 60, want: PositionRange{Lower: 887160, Upper: 887220}},
		{name: "clamped at minimum coarse spacing", tick: MinTick, spacing: 200, want: PositionRange{Lower: -887200, Upper: -887000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RangeAround(tt.tick, tt.spacing)
			if err != nil {
				t.Fatalf("RangeAround(%d, %d) error = %v", tt.tick, tt.spacing, err)
			}
			if got != tt.want {
				t.Errorf("RangeAround(%d, %d) = %+v, want %+v", tt.tick, tt.spacing, got, tt.want)
			}
			if got.Lower >= got.Upper {
				t.Errorf("range %+v not ordered", got)
			}
			if got.Lower < MinTick || got.Upper > MaxTick {
				t.Errorf("range %+v leaves the valid tick range", got)
			}
		})
	}
}

func TestRangeAroundErrors(t *testing.T) {
	if _, err := RangeAround(100, 0); !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("RangeAround spacing 0 error = %v, want ErrInvalidSpacing", err)
	}
	if _, err := RangeAround(MaxTick+1, 60); !errors.Is(err, ErrInvalidTick) {
		t.Errorf("RangeAround tick overflow error = %v, want ErrInvalidTick", err)
	}
}
