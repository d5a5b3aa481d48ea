package lending

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"kylix/crypto"
	"kylix/native/assets"
	"kylix/numeric/fixed"
)

const bpsDenominator = 10_000

// Config captures the runtime configuration for the lending module. Rates
// are expressed in basis points.
type Config struct {
	AnchorAsset             uint32      `toml:"AnchorAsset" yaml:"anchor_asset"`
	RateCurve               string      `toml:"RateCurve" yaml:"rate_curve"`
	ReserveFactorBps        uint64      `toml:"ReserveFactorBps" yaml:"reserve_factor_bps"`
	CollateralFactorBps     uint64      `toml:"CollateralFactorBps" yaml:"collateral_factor_bps"`
	LiquidationThresholdBps uint64      `toml:"LiquidationThresholdBps" yaml:"liquidation_threshold_bps"`
	Cosine                  CosineCurve `toml:"cosine" yaml:"cosine"`
	Jump                    JumpCurve   `toml:"jump" yaml:"jump"`
	CustodySeed             string      `toml:"CustodySeed" yaml:"custody_seed"`
}

// CosineCurve holds the cosine model points.
type CosineCurve struct {
	Y0Bps uint64 `toml:"Y0Bps" yaml:"y0_bps"`
	Y1Bps uint64 `toml:"Y1Bps" yaml:"y1_bps"`
	XmBps uint64 `toml:"XmBps" yaml:"xm_bps"`
	YmBps uint64 `toml:"YmBps" yaml:"ym_bps"`
}

// JumpCurve holds the kinked linear model parameters.
type JumpCurve struct {
	BaseRateBps uint64 `toml:"BaseRateBps" yaml:"base_rate_bps"`
	Slope1Bps   uint64 `toml:"Slope1Bps" yaml:"slope1_bps"`
	Slope2Bps   uint64 `toml:"Slope2Bps" yaml:"slope2_bps"`
	KinkBps     uint64 `toml:"KinkBps" yaml:"kink_bps"`
}

// DefaultConfig returns the parameters new pools are created with. The cosine
// points (2% at idle, 6% at 80% utilisation, 81% when drained) follow the
// same shape as the jump defaults and keep the curve non-decreasing.
func DefaultConfig() Config {
	return Config{
		AnchorAsset:             1,
		RateCurve:               string(CurveCosine),
		ReserveFactorBps:        1_000,
		CollateralFactorBps:     5_000,
		LiquidationThresholdBps: 8_000,
		Cosine: CosineCurve{
			Y0Bps: 200,
			Y1Bps: 8_100,
			XmBps: 8_000,
			YmBps: 600,
		},
		Jump: JumpCurve{
			BaseRateBps: 200,
			Slope1Bps:   400,
			Slope2Bps:   7_500,
			KinkBps:     8_000,
		},
		CustodySeed: "kylix/lending/custody",
	}
}

// LoadConfig decodes a TOML file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("lending config path required")
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode lending config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize trims string fields and fills the ones left empty.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.RateCurve = strings.ToLower(strings.TrimSpace(c.RateCurve))
	if c.RateCurve == "" {
		c.RateCurve = string(CurveCosine)
	}
	c.CustodySeed = strings.TrimSpace(c.CustodySeed)
	if c.CustodySeed == "" {
		c.CustodySeed = DefaultConfig().CustodySeed
	}
}

// Validate rejects parameters outside their admissible ranges.
func (c Config) Validate() error {
	switch Curve(c.RateCurve) {
	case CurveCosine, CurveJump:
	default:
		return fmt.Errorf("lending config: unknown rate curve %q", c.RateCurve)
	}
	checks := []struct {
		name string
		bps  uint64
	}{
		{"ReserveFactorBps", c.ReserveFactorBps},
		{"CollateralFactorBps", c.CollateralFactorBps},
		{"LiquidationThresholdBps", c.LiquidationThresholdBps},
		{"cosine.Y0Bps", c.Cosine.Y0Bps},
		{"cosine.Y1Bps", c.Cosine.Y1Bps},
		{"cosine.XmBps", c.Cosine.XmBps},
		{"cosine.YmBps", c.Cosine.YmBps},
		{"jump.BaseRateBps", c.Jump.BaseRateBps},
		{"jump.Slope1Bps", c.Jump.Slope1Bps},
		{"jump.Slope2Bps", c.Jump.Slope2Bps},
		{"jump.KinkBps", c.Jump.KinkBps},
	}
	for _, check := range checks {
		if check.bps > bpsDenominator {
			return fmt.Errorf("lending config: %s must not exceed %d", check.name, bpsDenominator)
		}
	}
	if c.CollateralFactorBps == 0 {
		return fmt.Errorf("lending config: CollateralFactorBps must be positive")
	}
	if Curve(c.RateCurve) == CurveCosine && (c.Cosine.XmBps == 0 || c.Cosine.XmBps == bpsDenominator) {
		return fmt.Errorf("lending config: cosine.XmBps must lie strictly between 0 and %d", bpsDenominator)
	}
	return nil
}

// InterestModel converts the configured curve into the model stored on pools.
func (c Config) InterestModel() InterestRateModel {
	curve := Curve(c.RateCurve)
	if curve == "" {
		curve = CurveCosine
	}
	return InterestRateModel{
		Curve:    curve,
		Y0:       fixed.FromBps(c.Cosine.Y0Bps),
		Y1:       fixed.FromBps(c.Cosine.Y1Bps),
		Xm:       fixed.FromBps(c.Cosine.XmBps),
		Ym:       fixed.FromBps(c.Cosine.YmBps),
		BaseRate: fixed.FromBps(c.Jump.BaseRateBps),
		Slope1:   fixed.FromBps(c.Jump.Slope1Bps),
		Slope2:   fixed.FromBps(c.Jump.Slope2Bps),
		Kink:     fixed.FromBps(c.Jump.KinkBps),
	}
}

// PoolParams returns the risk and rate parameters applied at pool creation.
func (c Config) PoolParams() PoolParams {
	return PoolParams{
		InterestModel:        c.InterestModel(),
		ReserveFactor:        fixed.FromBps(c.ReserveFactorBps),
		CollateralFactor:     fixed.FromBps(c.CollateralFactorBps),
		LiquidationThreshold: fixed.FromBps(c.LiquidationThresholdBps),
	}
}

// CustodyAccount returns the account holding pool reserves and collateral.
func (c Config) CustodyAccount() crypto.Address {
	seed := c.CustodySeed
	if strings.TrimSpace(seed) == "" {
		seed = DefaultConfig().CustodySeed
	}
	return crypto.DeriveAccount(seed)
}

// Anchor returns the asset cross prices are derived through.
func (c Config) Anchor() assets.ID {
	return assets.ID(c.AnchorAsset)
}
