package task

// Config is the static schema of one cooperative-control task. It is
// built once at controller construction and never mutated afterwards.
type Config struct {
	Name string
	Env  string

	NAgents  int
	NEnemies int

	// Action space: the no-attack head plus one attack action per enemy.
	NActionsNoAttack int

	// Per-entity feature widths inside the flat global state.
	AllyStateFeats  int
	EnemyStateFeats int

	// Per-entity feature widths inside each agent's observation.
	ObsMoveFeats  int
	ObsOwnFeats   int
	ObsAllyFeats  int
	ObsEnemyFeats int

	ObsLastAction bool
	ObsAgentID    bool

	StateLastAction     bool
	StateTimestepNumber bool
}

func (c *Config) NActions() int {
	return c.NActionsNoAttack + c.NEnemies
}
