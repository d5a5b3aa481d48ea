package lending

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kylix/crypto"
	"kylix/numeric/fixed"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lending.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
RateCurve = "JUMP"
CollateralFactorBps = 6000
CustodySeed = "  test/custody "

[jump]
KinkBps = 9000
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateCurve != string(CurveJump) {
		t.Fatalf("expected jump curve, got %q", cfg.RateCurve)
	}
	if cfg.ReserveFactorBps != 1_000 || cfg.Jump.Slope2Bps != 7_500 {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
	params := cfg.PoolParams()
	if !params.CollateralFactor.Equal(fixed.MustParse("0.6")) || !params.InterestModel.Kink.Equal(fixed.MustParse("0.9")) {
		t.Fatalf("unexpected params %+v", params)
	}
	if cfg.CustodyAccount() != crypto.DeriveAccount("test/custody") {
		t.Fatalf("custody seed not trimmed")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown curve":   func(c *Config) { c.RateCurve = "linear" },
		"zero collateral": func(c *Config) { c.CollateralFactorBps = 0 },
		"reserve > 100%":  func(c *Config) { c.ReserveFactorBps = 10_001 },
		"xm at bound":     func(c *Config) { c.Cosine.XmBps = 10_000 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := LoadConfig(" "); err == nil || !strings.Contains(err.Error(), "path required") {
		t.Fatalf("expected path error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrLendingPoolNotActive, KindValidation},
		{ErrNotEnoughCollateral, KindSolvency},
		{arithmetic(fixed.ErrDivisionByZero), KindArithmetic},
		{errNilState, KindInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%v: got %s want %s", tc.err, got, tc.want)
		}
	}
}
