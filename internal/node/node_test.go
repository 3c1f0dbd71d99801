package node

import (
	"context"
	"testing"

	"github.com/chordmesh/ringsnode/internal/config"
	"github.com/chordmesh/ringsnode/internal/identity"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return &config.Config{
		ListenAddr: "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		KeyPair:    kp,
	}
}

func TestNewWiresComponentsBeforeRun(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.Did() != cfg.KeyPair.Did() {
		t.Fatalf("expected node Did to match keypair Did")
	}
	if n.AdminAddr() == "" {
		t.Fatal("expected admin server to have a bound address")
	}
	if n.BootstrapAddr() != "" {
		t.Fatal("expected bootstrap address to be unset before Run")
	}
}

func TestNewRejectsInvalidAdminAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminAddr = "not a valid address"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an invalid admin address")
	}
}
