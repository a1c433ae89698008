package genesis

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"tally/core/state"
	"tally/crypto"
	"tally/native/subscriptions"
	"tally/native/token"
	"tally/storage"
)

func testAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

func testSpec() *Spec {
	return &Spec{
		GenesisTime:      "2024-01-01T00:00:00Z",
		UpgradeAuthority: testAddress(0x01).String(),
		Mint: MintSpec{
			Address:   testAddress(0x4D).String(),
			Authority: testAddress(0x02).String(),
			Decimals:  6,
		},
		Alloc: map[string]AllocSpec{
			testAddress(0x10).String(): {Native: 5_000, Tokens: 1_000_000},
			testAddress(0x11).Hex():    {Native: 7},
		},
		Protocol: &ProtocolSpec{
			Authority:               testAddress(0x03).String(),
			MinFeeBps:               10,
			MaxFeeBps:               50,
			KeeperFeeBps:            15,
			MinPeriodSeconds:        86_400,
			MaxGraceSeconds:         604_800,
			MaxWithdrawalAmount:     1_000_000_000,
			DefaultAllowancePeriods: 3,
			RecordDeposit:           100,
		},
	}
}

func TestBuildAppliesOnce(t *testing.T) {
	spec := testSpec()
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	db := storage.NewMemDB()
	applied, err := Build(spec, db)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !applied {
		t.Fatalf("expected genesis to be applied")
	}

	view := state.NewJournal(db)
	acc, err := view.GetAccount(testAddress(0x10))
	if err != nil || acc == nil || acc.Balance != 5_000 {
		t.Fatalf("unexpected native allocation: %+v, %v", acc, err)
	}
	tokens := token.NewEngine()
	tokens.SetState(view)
	holding, _ := crypto.AssociatedTokenAddress(testAddress(0x10), testAddress(0x4D))
	acct, err := tokens.LoadAccount(holding)
	if err != nil {
		t.Fatalf("load holding: %v", err)
	}
	if acct.Amount != 1_000_000 {
		t.Fatalf("token allocation = %d", acct.Amount)
	}
	platform, _ := crypto.AssociatedTokenAddress(testAddress(0x03), testAddress(0x4D))
	if _, err := tokens.LoadAccount(platform); err != nil {
		t.Fatalf("platform treasury missing: %v", err)
	}

	engine := subscriptions.NewEngine()
	engine.SetState(view)
	cfg, err := engine.Config()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Authority != testAddress(0x03) || cfg.AllowedMint != testAddress(0x4D) {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	again, err := Build(testSpec(), db)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if again {
		t.Fatalf("genesis applied twice")
	}
}

func TestBuildRejectsBadProtocol(t *testing.T) {
	spec := testSpec()
	spec.Protocol.DefaultAllowancePeriods = 0
	if err := spec.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	db := storage.NewMemDB()
	if _, err := Build(spec, db); err == nil {
		t.Fatalf("expected protocol config error")
	}
	marker, err := state.NewJournal(db).GetMeta(MarkerKey)
	if err != nil || marker != nil {
		t.Fatalf("failed genesis left a marker")
	}
}

func TestLoadSpecValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	if err := os.WriteFile(path, []byte(`{"genesisTime":"2024-01-01T00:00:00Z","upgradeAuthority":"","mint":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSpec(path); err == nil {
		t.Fatalf("expected missing upgrade authority to fail")
	}
	if err := os.WriteFile(path, []byte(`{"unknown":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSpec(path); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
}
