package arena

import (
	"fmt"
	"strings"
)

// Kind tags a Body with its variant.
type Kind uint8

const (
	KindStatic Kind = iota
	KindDynamic
	KindPlayer
	KindProjectile
	KindDecorator
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	case KindDecorator:
		return "decorator"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a kind name back to a Kind.
func ParseKind(name string) (Kind, error) {
	for k := KindStatic; k <= KindDecorator; k++ {
		if strings.EqualFold(k.String(), strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("arena: unknown body kind %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// capabilities is what a body kind is allowed to do.
type capabilities struct {
	loop       bool // owns a physics goroutine and lives in the dynamic registry
	collidable bool // may raise collision events
	weapons    bool
	immunity   bool // carries a shooter id and immunity window
}

var capabilityTable = [...]capabilities{
	KindStatic:     {},
	KindDynamic:    {loop: true, collidable: true},
	KindPlayer:     {loop: true, collidable: true, weapons: true},
	KindProjectile: {loop: true, collidable: true, immunity: true},
	KindDecorator:  {},
}

func (k Kind) caps() capabilities {
	if int(k) < len(capabilityTable) {
		return capabilityTable[k]
	}
	return capabilities{}
}

// Moving reports whether bodies of this kind run their own physics loop.
func (k Kind) Moving() bool { return k.caps().loop }

// BodyState is the lifecycle of a Body.
//
//	STARTING -> ALIVE -> HANDS_OFF -> {ALIVE, DEAD}
//
// HANDS_OFF only exists while the simulation runs detection and actions for
// the body. DEAD is terminal.
type BodyState int32

const (
	StateStarting BodyState = iota
	StateAlive
	StateHandsOff
	StateDead
)

func (s BodyState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAlive:
		return "alive"
	case StateHandsOff:
		return "hands_off"
	case StateDead:
		return "dead"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
