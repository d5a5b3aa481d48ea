package fixed

import (
	"errors"
	"testing"
)

const tol = "0.000000000000001"

func signed(t *testing.T, s string) Signed {
	t.Helper()
	neg := s[0] == '-'
	if neg {
		s = s[1:]
	}
	v, err := SignedFromRate(MustParse(s))
	if err != nil {
		t.Fatalf("signed %s: %v", s, err)
	}
	if neg {
		v, _ = v.Neg()
	}
	return v
}

func TestLog2(t *testing.T) {
	exact, err := Log2(FromUint64(8))
	if err != nil || exact.String() != "3" {
		t.Fatalf("log2(8) = %s (%v)", exact, err)
	}
	half, err := Log2(MustRational(1, 2))
	if err != nil || half.String() != "-1" {
		t.Fatalf("log2(0.5) = %s (%v)", half, err)
	}
	got, err := Log2(MustParse("0.8"))
	if err != nil {
		t.Fatalf("log2(0.8): %v", err)
	}
	withinSigned(t, got, "-0.321928094887362347", tol)

	got, err = Log2(MustParse("10"))
	if err != nil {
		t.Fatalf("log2(10): %v", err)
	}
	withinSigned(t, got, "3.321928094887362347", tol)

	if _, err := Log2(Zero()); !errors.Is(err, ErrDomain) {
		t.Fatalf("expected domain error for log2(0), got %v", err)
	}
}

func TestExp(t *testing.T) {
	got, err := Exp(Signed{})
	if err != nil || !got.Equal(One()) {
		t.Fatalf("exp(0) = %s (%v)", got, err)
	}
	got, err = Exp(signed(t, "1"))
	if err != nil {
		t.Fatalf("exp(1): %v", err)
	}
	within(t, got, "2.718281828459045235", tol)

	got, err = Exp(signed(t, "-1"))
	if err != nil {
		t.Fatalf("exp(-1): %v", err)
	}
	within(t, got, "0.367879441171442321", tol)

	got, err = Exp(signed(t, "0.045"))
	if err != nil {
		t.Fatalf("exp(0.045): %v", err)
	}
	within(t, got, "1.046027859908716942", tol)

	if _, err := Exp(SignedFromInt64(500)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	tiny, err := Exp(SignedFromInt64(-500))
	if err != nil || !tiny.IsZero() {
		t.Fatalf("exp(-500) = %s (%v)", tiny, err)
	}
}

func TestPowSpecialCases(t *testing.T) {
	if got, err := Pow(Zero(), Signed{}); err != nil || !got.Equal(One()) {
		t.Fatalf("0^0 = %s (%v)", got, err)
	}
	if got, err := Pow(Zero(), SignedFromInt64(2)); err != nil || !got.IsZero() {
		t.Fatalf("0^2 = %s (%v)", got, err)
	}
	if _, err := Pow(Zero(), SignedFromInt64(-1)); !errors.Is(err, ErrDomain) {
		t.Fatalf("expected ErrDomain for 0^-1, got %v", err)
	}
	if _, err := Pow(Zero(), signed(t, "-0.5")); !errors.Is(err, ErrDomain) || errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDomain for 0^-0.5, got %v", err)
	}
	if got, err := Pow(One(), SignedFromInt64(1_000_000)); err != nil || !got.Equal(One()) {
		t.Fatalf("1^n = %s (%v)", got, err)
	}
	if got, err := Pow(FromUint64(2), SignedFromInt64(1000)); err != nil || !got.Equal(MaxRate()) {
		t.Fatalf("expected saturation to max, got %s (%v)", got, err)
	}
	if got, err := Pow(MustRational(1, 2), SignedFromInt64(1000)); err != nil || !got.IsZero() {
		t.Fatalf("expected saturation to zero, got %s (%v)", got, err)
	}
}

func TestPowFractional(t *testing.T) {
	got, err := Pow(MustParse("0.25"), signed(t, "0.5"))
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	within(t, got, "0.5", tol)

	got, err = Pow(FromUint64(2), SignedFromInt64(10))
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	within(t, got, "1024", "0.000000000001")
}

func TestCos(t *testing.T) {
	got, err := Cos(Signed{})
	if err != nil || got.String() != "1" {
		t.Fatalf("cos(0) = %s (%v)", got, err)
	}
	piSigned, _ := SignedFromRate(Pi())
	got, err = Cos(piSigned)
	if err != nil || got.String() != "-1" {
		t.Fatalf("cos(pi) = %s (%v)", got, err)
	}
	got, err = Cos(signed(t, "1"))
	if err != nil {
		t.Fatalf("cos(1): %v", err)
	}
	withinSigned(t, got, "0.540302305868139717", tol)

	got, err = Cos(signed(t, "-1"))
	if err != nil {
		t.Fatalf("cos(-1): %v", err)
	}
	withinSigned(t, got, "0.540302305868139717", tol)

	got, err = Cos(signed(t, "4"))
	if err != nil {
		t.Fatalf("cos(4): %v", err)
	}
	withinSigned(t, got, "-0.653643620863611914", tol)

	got, err = Cos(signed(t, "20"))
	if err != nil {
		t.Fatalf("cos(20): %v", err)
	}
	withinSigned(t, got, "0.408082061813391986", tol)
}
