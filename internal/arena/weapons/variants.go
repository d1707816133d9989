package weapons

// SingleShot fires one projectile per request.
type SingleShot struct{ base }

// MustFireNow implements Weapon.
func (w *SingleShot) MustFireNow(dt float64) bool { return w.fireOnce(dt) }

// MineLauncher drops one mine per request.
type MineLauncher struct{ base }

// MustFireNow implements Weapon.
func (w *MineLauncher) MustFireNow(dt float64) bool { return w.fireOnce(dt) }

// MissileLauncher launches one self-accelerating missile per request.
type MissileLauncher struct{ base }

// MustFireNow implements Weapon.
func (w *MissileLauncher) MustFireNow(dt float64) bool { return w.fireOnce(dt) }

// Burst fires BurstSize shots per request, BurstFireRate apart, then waits
// 1/FireRate before the next burst can start.
type Burst struct {
	base
	shotsRemaining int
}

// MustFireNow implements Weapon.
func (w *Burst) MustFireNow(dt float64) bool {
	if w.coolDown(dt) {
		return false
	}
	if w.reloadIfEmpty() {
		w.shotsRemaining = 0
		return false
	}
	w.state.Store(int32(Ready))

	if w.shotsRemaining > 0 {
		// requests made mid-burst are dropped
		w.discardRequests()
		w.shotsRemaining--
		w.fireBurstShot()
		return true
	}

	if !w.hasRequest() {
		return false
	}

	w.discardRequests()
	w.shotsRemaining = max(1, w.cfg.BurstSize) - 1
	w.fireBurstShot()
	return true
}

func (w *Burst) fireBurstShot() {
	w.ammo.Add(-1)
	if w.shotsRemaining == 0 {
		w.cooldown = 1.0 / w.cfg.FireRate
		return
	}
	w.cooldown = 1.0 / w.cfg.BurstFireRate
}
