package weapons

import (
	"errors"
	"math"
	"testing"
)

func mustNew(t *testing.T, cfg Config) Weapon {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return w
}

// TestNewFactory tests kind dispatch and validation
func TestNewFactory(t *testing.T) {
	valid := Config{FireRate: 1, MaxAmmo: 1, BurstFireRate: 1}

	tests := []struct {
		kind Kind
		want string
	}{
		{KindPrimary, "*weapons.SingleShot"},
		{KindBurst, "*weapons.Burst"},
		{KindMissileLauncher, "*weapons.MissileLauncher"},
		{KindMineLauncher, "*weapons.MineLauncher"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cfg := valid
			cfg.Kind = tt.kind
			w := mustNew(t, cfg)
			if got := typeName(w); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		cfg := valid
		cfg.Kind = Kind(42)
		if _, err := New(cfg); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("Expected ErrUnknownKind, got %v", err)
		}
	})

	t.Run("zero fire rate", func(t *testing.T) {
		if _, err := New(Config{Kind: KindPrimary, MaxAmmo: 1}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, got %v", err)
		}
	})
}

func typeName(w Weapon) string {
	switch w.(type) {
	case *SingleShot:
		return "*weapons.SingleShot"
	case *Burst:
		return "*weapons.Burst"
	case *MissileLauncher:
		return "*weapons.MissileLauncher"
	case *MineLauncher:
		return "*weapons.MineLauncher"
	}
	return "unknown"
}

// TestParseKind tests name lookup
func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Burst ")
	if err != nil || k != KindBurst {
		t.Errorf("Expected KindBurst, got %v (%v)", k, err)
	}
	if _, err := ParseKind("laser"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

// TestSingleShotCooldown verifies fireRate=5 gives a 0.2s cooldown
func TestSingleShotCooldown(t *testing.T) {
	w := mustNew(t, Config{Kind: KindPrimary, FireRate: 5, MaxAmmo: 100, ReloadTime: 1})
	const dt = 0.03

	if w.MustFireNow(dt) {
		t.Fatal("No request registered, weapon must not fire")
	}

	w.RegisterFireRequest()
	if !w.MustFireNow(dt) {
		t.Fatal("Ready weapon with a request must fire immediately")
	}
	if cd := w.(*SingleShot).cooldown; math.Abs(cd-0.2) > 1e-9 {
		t.Errorf("Expected cooldown 0.2, got %f", cd)
	}

	w.RegisterFireRequest()
	if w.MustFireNow(dt) {
		t.Fatal("Repeat request during cooldown must be refused")
	}

	// the refused request was dropped, not queued
	elapsed := dt
	for w.(*SingleShot).cooldown > 0 {
		if w.MustFireNow(dt) {
			t.Fatal("Weapon fired while cooling down")
		}
		elapsed += dt
	}
	if elapsed < 0.2 {
		t.Errorf("Cooldown elapsed too early: %f", elapsed)
	}
	if w.MustFireNow(dt) {
		t.Error("Dropped request must not fire after cooldown")
	}

	w.RegisterFireRequest()
	if !w.MustFireNow(dt) {
		t.Error("Fresh request after cooldown must fire")
	}
}

// TestSingleShotReload verifies the empty-magazine path
func TestSingleShotReload(t *testing.T) {
	w := mustNew(t, Config{Kind: KindMineLauncher, FireRate: 1000, MaxAmmo: 2, ReloadTime: 0.5})
	const dt = 0.01

	fired := 0
	for i := 0; i < 10 && fired < 2; i++ {
		w.RegisterFireRequest()
		if w.MustFireNow(dt) {
			fired++
		}
	}
	if fired != 2 {
		t.Fatalf("Expected 2 shots, got %d", fired)
	}

	// drain the short inter-shot cooldown
	for w.(*MineLauncher).cooldown > 0 {
		w.MustFireNow(dt)
	}

	w.RegisterFireRequest()
	if w.MustFireNow(dt) {
		t.Fatal("Empty weapon must not fire")
	}
	if w.State() != Reloading {
		t.Errorf("Expected reloading state, got %v", w.State())
	}
	if w.AmmoStatus() != 1 {
		t.Errorf("Magazine should be refilled, got %f", w.AmmoStatus())
	}
	if cd := w.(*MineLauncher).cooldown; cd != 0.5 {
		t.Errorf("Expected reload cooldown 0.5, got %f", cd)
	}

	for w.(*MineLauncher).cooldown > 0 {
		w.MustFireNow(dt)
	}
	w.MustFireNow(dt)
	if w.State() != Ready {
		t.Errorf("Expected ready after reload, got %v", w.State())
	}
}

// TestBurstOfThree verifies one request yields exactly three shots
func TestBurstOfThree(t *testing.T) {
	w := mustNew(t, Config{
		Kind:          KindBurst,
		FireRate:      1,
		BurstSize:     3,
		BurstFireRate: 10,
		MaxAmmo:       30,
		ReloadTime:    2,
	})
	b := w.(*Burst)
	const dt = 0.03

	w.RegisterFireRequest()
	shots := 0
	for i := 0; i < 30; i++ { // 0.9s, less than the 1s inter-burst cooldown
		if w.MustFireNow(dt) {
			shots++
		}
		if i == 1 {
			w.RegisterFireRequest() // mid-burst, must be dropped
		}
	}

	if shots != 3 {
		t.Errorf("Expected 3 shots, got %d", shots)
	}
	if b.ammo.Load() != 27 {
		t.Errorf("Expected 27 rounds left, got %d", b.ammo.Load())
	}
	if b.shotsRemaining != 0 {
		t.Errorf("Burst should be finished, %d shots remaining", b.shotsRemaining)
	}
	if b.cooldown <= 0 {
		t.Error("Expected an inter-burst cooldown after the burst")
	}
}

// TestBurstSizeZeroFiresOnce verifies max(1, burstSize)
func TestBurstSizeZeroFiresOnce(t *testing.T) {
	w := mustNew(t, Config{Kind: KindBurst, FireRate: 2, BurstFireRate: 10, MaxAmmo: 5})

	w.RegisterFireRequest()
	if !w.MustFireNow(0.01) {
		t.Fatal("Burst with size 0 should still fire one shot")
	}
	if cd := w.(*Burst).cooldown; cd != 0.5 {
		t.Errorf("Expected inter-burst cooldown 0.5, got %f", cd)
	}
}
