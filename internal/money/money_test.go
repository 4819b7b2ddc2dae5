package money

import (
	"math/big"
	"testing"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"one dollar", "1.00", 1_000_000},
		{"three cents", "0.03", 30_000},
		{"no frac", "5", 5_000_000},
		{"short frac", "1.5", 1_500_000},
		{"smallest unit", "0.000001", 1},
		{"six decimals", "1.123456", 1_123_456},
		{"truncates extra decimals", "1.1234567", 1_123_456},
		{"large", "999999.999999", 999_999_999_999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if !ok {
				t.Fatalf("Parse(%q) returned ok=false", tt.input)
			}
			if got.Int64() != tt.expected {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got.Int64(), tt.expected)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"-1.00", "1.2.3", "abc", "1,50"} {
		if _, ok := Parse(input); ok {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	got, ok := Parse("")
	if !ok || got.Sign() != 0 {
		t.Errorf("Parse(\"\") = %v, %v; want 0, true", got, ok)
	}
}

func TestParsePositive(t *testing.T) {
	if _, ok := ParsePositive("0"); ok {
		t.Error("ParsePositive(\"0\") should fail")
	}
	if _, ok := ParsePositive(""); ok {
		t.Error("ParsePositive(\"\") should fail")
	}
	if v, ok := ParsePositive("0.01"); !ok || v.Int64() != 10_000 {
		t.Errorf("ParsePositive(\"0.01\") = %v, %v", v, ok)
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	for _, s := range []string{"1.500000", "0.000001", "0.030000", "100.000000"} {
		v, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := Format(v); got != s {
			t.Errorf("Format(Parse(%q)) = %q", s, got)
		}
	}
}

func TestFormat_Negative(t *testing.T) {
	if got := Format(big.NewInt(-1_500_000)); got != "-1.500000" {
		t.Errorf("Format(-1500000) = %q", got)
	}
}

func TestFraction(t *testing.T) {
	ceiling, _ := Parse("10.00")
	// 80% of 10.00 = 8.00
	if got := Format(Fraction(ceiling, 80, 100)); got != "8.000000" {
		t.Errorf("Fraction(10, 80/100) = %q", got)
	}
}

func TestAcceptedCurrency(t *testing.T) {
	if !AcceptedCurrency("USDC") || !AcceptedCurrency("usd") {
		t.Error("USDC and usd should be accepted")
	}
	if AcceptedCurrency("EUR") || AcceptedCurrency("") {
		t.Error("EUR and empty should be rejected")
	}
}
