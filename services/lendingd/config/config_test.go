package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kylix/native/lending"
	"kylix/storage"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	return writeFile(t, "config.yaml", contents)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
environment: " Dev "
tls:
  allow_insecure: true
auth:
  api_tokens:
    - " token-one "
    - " "
    - "token-two"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if !cfg.Dev() {
		t.Fatalf("expected dev environment, got %q", cfg.Environment)
	}
	if len(cfg.Auth.APITokens) != 2 {
		t.Fatalf("expected 2 trimmed api tokens, got %d", len(cfg.Auth.APITokens))
	}
	if cfg.Storage.Backend != storage.BackendLevelDB || cfg.Storage.Path != defaultStoragePath {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Lending.RateCurve != string(lending.CurveCosine) || cfg.Lending.CollateralFactorBps != 5_000 {
		t.Fatalf("lending defaults not applied: %+v", cfg.Lending)
	}
	if cfg.Genesis != nil {
		t.Fatalf("expected no genesis")
	}
}

func TestLoadConfigEmbeddedLendingAndGenesis(t *testing.T) {
	path := writeConfig(t, `
environment: dev
storage:
  backend: memory
tls:
  allow_insecure: true
paused: [" lending "]
lending:
  rate_curve: jump
  collateral_factor_bps: 7000
genesis:
  assets:
    - id: 1
      name: Tether
      symbol: USDT
      decimals: 6
      owner: kylix1qyqszqgpqyqszqgpqyqszqgpqyqszqgp42vyn5
  prices: []
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lending.RateCurve != string(lending.CurveJump) || cfg.Lending.CollateralFactorBps != 7_000 {
		t.Fatalf("lending section not decoded: %+v", cfg.Lending)
	}
	if cfg.Lending.ReserveFactorBps != 1_000 {
		t.Fatalf("unset lending fields should keep defaults")
	}
	if len(cfg.Paused) != 1 || cfg.Paused[0] != "lending" {
		t.Fatalf("unexpected paused modules %v", cfg.Paused)
	}
	if cfg.Genesis == nil || len(cfg.Genesis.Assets) != 1 || cfg.Genesis.Assets[0].Symbol != "USDT" {
		t.Fatalf("unexpected genesis %+v", cfg.Genesis)
	}
}

func TestLoadConfigLendingFile(t *testing.T) {
	lendingPath := writeFile(t, "lending.toml", `
RateCurve = "jump"
ReserveFactorBps = 2000
`)
	path := writeConfig(t, `
environment: dev
storage:
  backend: memory
tls:
  allow_insecure: true
lending_file: "`+lendingPath+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lending.ReserveFactorBps != 2_000 || cfg.Lending.RateCurve != string(lending.CurveJump) {
		t.Fatalf("lending file not applied: %+v", cfg.Lending)
	}
}

func TestLoadConfigRejectsInvalidSections(t *testing.T) {
	cases := map[string]string{
		"unknown backend": `
environment: dev
storage: {backend: redis}
tls: {allow_insecure: true}
`,
		"bad lending": `
environment: dev
storage: {backend: memory}
tls: {allow_insecure: true}
lending: {collateral_factor_bps: 0}
`,
		"bad genesis": `
environment: dev
storage: {backend: memory}
tls: {allow_insecure: true}
genesis:
  assets:
    - {id: 0, name: x, symbol: X}
`,
		"missing path": `
environment: dev
storage: {backend: bolt, path: " "}
tls: {allow_insecure: true}
`,
	}
	for name, contents := range cases {
		if _, err := Load(writeConfig(t, contents)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigRequiresAuthenticatorsOutsideDev(t *testing.T) {
	path := writeConfig(t, `
listen: ":8086"
tls:
  cert: "server.crt"
  key: "server.key"
auth: {}
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "auth") {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestLoadConfigValidatesTLS(t *testing.T) {
	path := writeConfig(t, `
tls:
  cert: "server.crt"
auth:
  api_tokens:
    - token
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when tls key is missing")
	}
}

func TestLoadConfigValidatesMTLSDependencies(t *testing.T) {
	path := writeConfig(t, `
tls:
  cert: "server.crt"
  key: "server.key"
auth:
  mtls:
    allowed_common_names: [client]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when mtls is configured without a client ca")
	}
}

func TestLoadConfigRequiresTLSMaterialUnlessInsecure(t *testing.T) {
	path := writeConfig(t, `
auth:
  api_tokens: [token]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when tls material missing without allow_insecure")
	}
}
