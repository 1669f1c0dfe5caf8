package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/axiom-fi/sae/internal/logger"
	"github.com/axiom-fi/sae/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrContextNotFound = errors.New("automation context not found")
	ErrInvalidOwner    = errors.New("owner identifier is invalid")
)

// Registry owns the per-owner automation contexts. All access goes through
// its lock: registration and update calls may race with an in-flight
// scheduler cycle for the same owner.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*types.AutomationContext
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		contexts: make(map[string]*types.AutomationContext),
		logger:   logger.GetForComponent("scenario_registry"),
		now:      time.Now,
	}
}

// Register creates or overwrites the context for an owner. Scenarios are
// validated and sorted by descending priority before the context becomes
// visible.
func (r *Registry) Register(owner, chainID string, scenarios []types.AutomationScenario, cfg types.GlobalConfig) (types.AutomationContext, error) {
	if err := validateOwner(owner); err != nil {
		return types.AutomationContext{}, err
	}
	for i, s := range scenarios {
		if err := s.Validate(); err != nil {
			return types.AutomationContext{}, fmt.Errorf("scenario %d (%s): %w", i, s.ID, err)
		}
	}

	now := r.now()
	actx := &types.AutomationContext{
		Owner:       owner,
		ChainID:     chainID,
		Scenarios:   cloneScenarios(scenarios),
		Config:      cfg,
		Performance: types.NewPerformanceMetrics(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	actx.SortScenarios()

	r.mu.Lock()
	r.contexts[owner] = actx
	r.mu.Unlock()

	r.logger.Info().
		Str("owner", owner).
		Str("chainID", chainID).
		Int("scenarios", len(scenarios)).
		Msg("Automation context registered")

	return *actx, nil
}

// UpdateScenarios replaces the scenario list of an existing context, keeping
// config and performance. Updating a missing owner is a documented no-op.
func (r *Registry) UpdateScenarios(owner string, scenarios []types.AutomationScenario) error {
	for i, s := range scenarios {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("scenario %d (%s): %w", i, s.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	actx, exists := r.contexts[owner]
	if !exists {
		r.logger.Debug().Str("owner", owner).Msg("UpdateScenarios for unknown owner, ignoring")
		return nil
	}

	actx.Scenarios = cloneScenarios(scenarios)
	actx.SortScenarios()
	actx.UpdatedAt = r.now()

	r.logger.Info().Str("owner", owner).Int("scenarios", len(scenarios)).Msg("Scenarios updated")
	return nil
}

// UpdateConfig replaces the global config of an existing context. Updating a
// missing owner is a documented no-op.
func (r *Registry) UpdateConfig(owner string, cfg types.GlobalConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actx, exists := r.contexts[owner]
	if !exists {
		r.logger.Debug().Str("owner", owner).Msg("UpdateConfig for unknown owner, ignoring")
		return nil
	}

	actx.Config = cfg
	actx.UpdatedAt = r.now()
	return nil
}

// SetEmergencyStop toggles the emergency stop flag for an owner.
func (r *Registry) SetEmergencyStop(owner string, stopped bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actx, exists := r.contexts[owner]
	if !exists {
		return fmt.Errorf("%w: %s", ErrContextNotFound, owner)
	}
	actx.Config.EmergencyStop = stopped
	actx.UpdatedAt = r.now()

	r.logger.Warn().Str("owner", owner).Bool("stopped", stopped).Msg("Emergency stop flag changed")
	return nil
}

// Get returns a copy of the owner's context. The copy keeps readers and the
// scheduler from sharing mutable scenario slices.
func (r *Registry) Get(owner string) (types.AutomationContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actx, exists := r.contexts[owner]
	if !exists {
		return types.AutomationContext{}, fmt.Errorf("%w: %s", ErrContextNotFound, owner)
	}

	cp := *actx
	cp.Scenarios = cloneScenarios(actx.Scenarios)
	return cp, nil
}

// Owners lists every registered owner. The scheduler loop iterates this.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make([]string, 0, len(r.contexts))
	for owner := range r.contexts {
		owners = append(owners, owner)
	}
	return owners
}

// RecordCycle folds a finished cycle back into the stored context: running
// performance counters plus last-execution stamps for scenarios that fired.
// apply is invoked under the registry lock.
func (r *Registry) RecordCycle(owner string, res types.ExecutionResult, apply func(pm *types.PerformanceMetrics, res types.ExecutionResult)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actx, exists := r.contexts[owner]
	if !exists {
		return fmt.Errorf("%w: %s", ErrContextNotFound, owner)
	}

	apply(&actx.Performance, res)

	executed := make(map[string]struct{})
	for _, sr := range res.Scenarios {
		if sr.Executed() {
			executed[sr.ScenarioID] = struct{}{}
		}
	}
	for i := range actx.Scenarios {
		if _, ok := executed[actx.Scenarios[i].ID]; ok {
			actx.Scenarios[i].Params.LastExecution = res.CompletedAt
		}
	}
	actx.UpdatedAt = r.now()
	return nil
}

func validateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("%w: empty", ErrInvalidOwner)
	}
	if len(owner) > 128 {
		return fmt.Errorf("%w: identifier exceeds 128 characters", ErrInvalidOwner)
	}
	return nil
}

func cloneScenarios(scenarios []types.AutomationScenario) []types.AutomationScenario {
	cp := make([]types.AutomationScenario, len(scenarios))
	copy(cp, scenarios)
	for i := range cp {
		if len(scenarios[i].Triggers) > 0 {
			cp[i].Triggers = append([]types.AutomationTrigger(nil), scenarios[i].Triggers...)
		}
		cp[i].Params = scenarios[i].Params.Clone()
	}
	return cp
}
