package arena

// EventType enumerates what detection can report for a body.
type EventType uint8

const (
	EventNone EventType = iota
	// Compass names follow the world orientation, not the screen:
	// east is x<0, west is x>=width, north is y<0, south is y>=height.
	EventReachedEastLimit
	EventReachedWestLimit
	EventReachedNorthLimit
	EventReachedSouthLimit
	EventCollision
	EventMustFire
	EventLifeOver
	EventThrustOn // a thrusting player's trail emitter is due
)

var eventNames = [...]string{
	EventNone:              "none",
	EventReachedEastLimit:  "reached_east_limit",
	EventReachedWestLimit:  "reached_west_limit",
	EventReachedNorthLimit: "reached_north_limit",
	EventReachedSouthLimit: "reached_south_limit",
	EventCollision:         "collision",
	EventMustFire:          "must_fire",
	EventLifeOver:          "life_over",
	EventThrustOn:          "thrust_on",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// IsLimit reports whether t is one of the four boundary events.
func (t EventType) IsLimit() bool {
	return t >= EventReachedEastLimit && t <= EventReachedSouthLimit
}

// Event is one detected occurrence. Events are built fresh on every
// detection pass and never stored by the simulation.
type Event struct {
	Type          EventType
	PrimaryID     string
	PrimaryKind   Kind
	SecondaryID   string // collisions only
	SecondaryKind Kind

	// Set only when a projectile is involved.
	ShooterID       string
	ShooterImmunity bool
}

// ActionType enumerates what a Policy may ask the simulation to do.
type ActionType uint8

const (
	ActionNone ActionType = iota
	ActionMove
	ActionReboundEast
	ActionReboundWest
	ActionReboundNorth
	ActionReboundSouth
	ActionDie
	ActionFire
	ActionSpawn
	ActionExplode
)

var actionNames = [...]string{
	ActionNone:         "none",
	ActionMove:         "move",
	ActionReboundEast:  "rebound_east",
	ActionReboundWest:  "rebound_west",
	ActionReboundNorth: "rebound_north",
	ActionReboundSouth: "rebound_south",
	ActionDie:          "die",
	ActionFire:         "fire",
	ActionSpawn:        "spawn",
	ActionExplode:      "explode",
}

func (t ActionType) String() string {
	if int(t) < len(actionNames) {
		return actionNames[t]
	}
	return "unknown"
}

// Executor is the layer authorized to carry out an action.
type Executor uint8

const (
	ExecutorBody Executor = iota
	ExecutorPhysics
	ExecutorSimulation
)

func (e Executor) String() string {
	switch e {
	case ExecutorBody:
		return "body"
	case ExecutorPhysics:
		return "physics"
	case ExecutorSimulation:
		return "simulation"
	}
	return "unknown"
}

// Priority orders action execution. Lower values run first.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// Action is one instruction returned by a Policy, consumed once.
type Action struct {
	TargetID string
	Type     ActionType
	Executor Executor
	Priority Priority
}

// Policy maps a batch of events to a batch of actions.
//
// DecideActions runs inside a body's HANDS_OFF window on that body's
// goroutine. It must be fast, must not block and must not call back into
// the simulation for the same body.
type Policy interface {
	DecideActions(events []Event) []Action
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(events []Event) []Action

// DecideActions implements Policy.
func (f PolicyFunc) DecideActions(events []Event) []Action { return f(events) }
