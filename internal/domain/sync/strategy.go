package sync

// StrategyName identifies a conflict resolution strategy
type StrategyName string

const (
	// StrategyClientWins overwrites server state with the client payload
	StrategyClientWins StrategyName = "client_wins"
	// StrategyServerWins discards the client payload and keeps server state
	StrategyServerWins StrategyName = "server_wins"
	// StrategyManual parks the operation as CONFLICT for explicit resolution
	StrategyManual StrategyName = "manual"
)

// IsValid checks if the strategy name is valid
func (n StrategyName) IsValid() bool {
	switch n {
	case StrategyClientWins, StrategyServerWins, StrategyManual:
		return true
	}
	return false
}

// String returns the string representation
func (n StrategyName) String() string {
	return string(n)
}

// AllStrategyNames returns all valid strategy names
func AllStrategyNames() []StrategyName {
	return []StrategyName{StrategyClientWins, StrategyServerWins, StrategyManual}
}

// ConflictAction is what the resolver does with a detected conflict
type ConflictAction string

const (
	// ActionApplyClient applies the client payload over the server state
	ActionApplyClient ConflictAction = "apply_client"
	// ActionKeepServer completes the operation without touching the entity
	ActionKeepServer ConflictAction = "keep_server"
	// ActionHold marks the operation CONFLICT and records a SyncConflict row
	ActionHold ConflictAction = "hold"
)

// ConflictDecision is the outcome of a strategy for one detected conflict
type ConflictDecision struct {
	Action ConflictAction
	// RecordConflict is true when a durable SyncConflict row must be written
	RecordConflict bool
}

// ConflictStrategy decides how a detected version mismatch is handled.
// Strategies only see the operation and the current server record; they must
// not touch storage themselves.
type ConflictStrategy interface {
	// Name returns the unique name of the strategy
	Name() StrategyName
	// Description returns a human-readable description
	Description() string
	// Decide returns the action for a conflict between op and server
	Decide(op *SyncOperation, server *EntityRecord) ConflictDecision
}

// clientWinsStrategy overwrites server state; the prior server snapshot is
// kept on the operation for audit, without a SyncConflict row.
type clientWinsStrategy struct{}

func (clientWinsStrategy) Name() StrategyName { return StrategyClientWins }

func (clientWinsStrategy) Description() string {
	return "Overwrite server state with the client payload"
}

func (clientWinsStrategy) Decide(op *SyncOperation, server *EntityRecord) ConflictDecision {
	return ConflictDecision{Action: ActionApplyClient}
}

// serverWinsStrategy discards the client payload; the operation counts as
// processed by doing nothing.
type serverWinsStrategy struct{}

func (serverWinsStrategy) Name() StrategyName { return StrategyServerWins }

func (serverWinsStrategy) Description() string {
	return "Keep server state authoritative and discard the client payload"
}

func (serverWinsStrategy) Decide(op *SyncOperation, server *EntityRecord) ConflictDecision {
	return ConflictDecision{Action: ActionKeepServer}
}

// manualStrategy parks the operation for explicit resolution and is the only
// strategy that creates durable conflict history.
type manualStrategy struct{}

func (manualStrategy) Name() StrategyName { return StrategyManual }

func (manualStrategy) Description() string {
	return "Park the operation as CONFLICT until explicitly resolved"
}

func (manualStrategy) Decide(op *SyncOperation, server *EntityRecord) ConflictDecision {
	return ConflictDecision{Action: ActionHold, RecordConflict: true}
}

// StrategyRegistry holds the available conflict strategies
type StrategyRegistry struct {
	strategies map[StrategyName]ConflictStrategy
	fallback   StrategyName
}

// NewStrategyRegistry creates a registry with all built-in strategies
// registered and manual as the fallback.
func NewStrategyRegistry() *StrategyRegistry {
	r := &StrategyRegistry{
		strategies: make(map[StrategyName]ConflictStrategy),
		fallback:   StrategyManual,
	}
	r.Register(clientWinsStrategy{})
	r.Register(serverWinsStrategy{})
	r.Register(manualStrategy{})
	return r
}

// Register adds a strategy to the registry
func (r *StrategyRegistry) Register(s ConflictStrategy) {
	r.strategies[s.Name()] = s
}

// Get returns the strategy for the given name
func (r *StrategyRegistry) Get(name StrategyName) (ConflictStrategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// GetOrDefault returns the strategy for the given name, or the manual
// fallback when the name is unknown or empty
func (r *StrategyRegistry) GetOrDefault(name StrategyName) ConflictStrategy {
	if s, ok := r.strategies[name]; ok {
		return s
	}
	return r.strategies[r.fallback]
}
