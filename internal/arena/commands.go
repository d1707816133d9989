package arena

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a player control input.
type Command uint8

const (
	CmdThrustOn Command = iota + 1
	CmdThrustOff
	CmdReverseThrust
	CmdRotateLeftOn
	CmdRotateRightOn
	CmdRotateOff
	CmdFire
	CmdNextWeapon
)

var commandNames = map[Command]string{
	CmdThrustOn:      "thrust_on",
	CmdThrustOff:     "thrust_off",
	CmdReverseThrust: "reverse_thrust",
	CmdRotateLeftOn:  "rotate_left_on",
	CmdRotateRightOn: "rotate_right_on",
	CmdRotateOff:     "rotate_off",
	CmdFire:          "fire",
	CmdNextWeapon:    "next_weapon",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// ErrUnknownCommand is returned by ParseCommand.
var ErrUnknownCommand = errors.New("arena: unknown command")

// ParseCommand maps a command name to a Command.
func ParseCommand(name string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Execute applies cmd to a player. Unknown players are ignored.
func (s *Simulation) Execute(playerID string, cmd Command) error {
	switch cmd {
	case CmdThrustOn:
		s.ThrustOn(playerID)
	case CmdThrustOff:
		s.ThrustOff(playerID)
	case CmdReverseThrust:
		s.ReverseThrust(playerID)
	case CmdRotateLeftOn:
		s.RotateLeftOn(playerID)
	case CmdRotateRightOn:
		s.RotateRightOn(playerID)
	case CmdRotateOff:
		s.RotateOff(playerID)
	case CmdFire:
		s.Fire(playerID)
	case CmdNextWeapon:
		s.SelectNextWeapon(playerID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return nil
}

// livePlayer returns the player if it exists and is not dead.
func (s *Simulation) livePlayer(id string) (*Body, bool) {
	p, ok := s.player(id)
	if !ok || p.State() == StateDead {
		return nil, false
	}
	return p, true
}

// ThrustOn sets the player's thrust to its maximum.
func (s *Simulation) ThrustOn(playerID string) {
	if p, ok := s.livePlayer(playerID); ok {
		p.engine.SetThrust(p.rig.maxThrust)
	}
}

// ThrustOff cuts the player's thrust.
func (s *Simulation) ThrustOff(playerID string) {
	if p, ok := s.livePlayer(playerID); ok {
		p.engine.SetThrust(0)
	}
}

// ReverseThrust sets full thrust backwards.
func (s *Simulation) ReverseThrust(playerID string) {
	if p, ok := s.livePlayer(playerID); ok {
		p.engine.SetThrust(-p.rig.maxThrust)
	}
}

// RotateLeftOn starts or accelerates a counter-clockwise rotation.
func (s *Simulation) RotateLeftOn(playerID string) {
	s.rotate(playerID, -1)
}

// RotateRightOn starts or accelerates a clockwise rotation.
func (s *Simulation) RotateRightOn(playerID string) {
	s.rotate(playerID, 1)
}

func (s *Simulation) rotate(playerID string, sign float64) {
	p, ok := s.livePlayer(playerID)
	if !ok {
		return
	}
	if p.engine.Current().AngularSpeed == 0 {
		p.engine.SetAngularSpeed(sign * p.rig.baseAngularSpeed)
	}
	p.engine.AddAngularAcceleration(sign * p.rig.maxAngularAcc)
}

// RotateOff stops any rotation.
func (s *Simulation) RotateOff(playerID string) {
	if p, ok := s.livePlayer(playerID); ok {
		p.engine.SetAngularAcceleration(0)
		p.engine.SetAngularSpeed(0)
	}
}

// Fire registers a fire request on the active weapon. The shot is taken by
// the player's own loop once the weapon allows it.
func (s *Simulation) Fire(playerID string) {
	p, ok := s.livePlayer(playerID)
	if !ok {
		return
	}
	if w := p.rig.active(); w != nil {
		w.RegisterFireRequest()
	}
}

// SelectNextWeapon cycles the active weapon.
func (s *Simulation) SelectNextWeapon(playerID string) {
	if p, ok := s.livePlayer(playerID); ok {
		p.rig.selectNext()
	}
}

// SelectWeapon activates the weapon at index. It reports false for unknown
// players or out-of-range indexes.
func (s *Simulation) SelectWeapon(playerID string, index int) bool {
	p, ok := s.livePlayer(playerID)
	if !ok {
		return false
	}
	return p.rig.selectIndex(index)
}

// UpdatePlayerGameplay lets the rules layer mutate a player's status.
func (s *Simulation) UpdatePlayerGameplay(playerID string, fn func(g *Gameplay)) bool {
	p, ok := s.livePlayer(playerID)
	if !ok {
		return false
	}
	p.rig.mu.Lock()
	fn(&p.rig.status)
	p.rig.mu.Unlock()
	return true
}
