package agent

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkUnit is one agent run inside RunParallel. The hooks are optional
// and run on the unit's goroutine.
type WorkUnit struct {
	// ID labels the unit in logs, for example an observable id.
	ID      string
	Options SpawnOptions

	// OnStart runs before the spawn. An error fails the unit like a
	// spawn failure.
	OnStart func() error
	OnSpawn func(Process)
	OnLine  LineFunc
	// OnDone receives the unit's result, including spawn failures.
	OnDone func(MonitorResult)
}

func (u WorkUnit) run(ctx context.Context, spawner Spawner, timeout time.Duration) MonitorResult {
	if u.OnStart != nil {
		if err := u.OnStart(); err != nil {
			log.Printf("[agent] start %s for %s failed: %v", u.Options.Role, u.ID, err)
			return MonitorResult{Crashed: true, CapturedOutput: []string{}}
		}
	}

	var res MonitorResult
	proc, err := spawner.Spawn(ctx, u.Options)
	if err != nil {
		log.Printf("[agent] spawn %s for %s failed: %v", u.Options.Role, u.ID, err)
		res = MonitorResult{Crashed: true, CapturedOutput: []string{}}
	} else {
		if u.OnSpawn != nil {
			u.OnSpawn(proc)
		}
		res = Monitor(ctx, proc, timeout, u.OnLine)
	}
	if u.OnDone != nil {
		u.OnDone(res)
	}
	return res
}

// RunParallel runs every unit with at most maxConcurrent processes alive at
// once and returns one result per unit in input order. A unit that fails to
// spawn yields a crashed result without an exit code.
func RunParallel(ctx context.Context, spawner Spawner, units []WorkUnit, maxConcurrent int, timeout time.Duration) []MonitorResult {
	results := make([]MonitorResult, len(units))
	if len(units) == 0 {
		return results
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, unit := range units {
		g.Go(func() error {
			results[i] = unit.run(ctx, spawner, timeout)
			return nil
		})
	}
	g.Wait()
	return results
}
