package main

import (
	"sync"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/arla-sim/agentsim/atomic_float"
	"github.com/arla-sim/agentsim/internal/dashboard"
	"github.com/arla-sim/agentsim/internal/eventbus"
	"github.com/arla-sim/agentsim/internal/sim"
)

// trackedTopics are the lifecycle topics worth surfacing a running count
// of on the dashboard; every one of them is published by the core itself.
var trackedTopics = []string{
	sim.TopicActionChosen,
	sim.TopicActionExecuted,
	sim.TopicEntityInactivated,
}

// eventCounter subscribes to the core's lifecycle topics and periodically
// pushes a dashboard.StatusUpdate built from the running totals plus the
// Manager's most recent snapshot, throttling pushes to a fixed cadence
// instead of firing one per event. rewardSum tracks the running total of
// every finalized reward using an AtomicFloat64 rather than a mutex, since
// every tick's action_executed handlers fire from within the simulation's
// own single-goroutine dispatch while publishLoop reads it concurrently
// from a separate goroutine on its own cadence. Active/total entity counts
// are read the same way, through Manager's atomic counters rather than the
// live component store: the store is exclusively owned by the scheduler's
// goroutine (spec §5) and publishLoop must never touch it directly.
type eventCounter struct {
	mu          sync.Mutex
	counts      map[string]int
	rewardSum   *atomic_float.AtomicFloat64
	rewardCount int64
	state       *sim.State
	manager     *sim.Manager
	done        chan struct{}
}

func newEventCounter(state *sim.State, updates chan<- dashboard.StatusUpdate, manager *sim.Manager) *eventCounter {
	ec := &eventCounter{
		counts:    make(map[string]int),
		rewardSum: atomic_float.NewAtomicFloat64(0),
		state:     state,
		manager:   manager,
		done:      make(chan struct{}),
	}

	for _, topic := range trackedTopics {
		topic := topic
		state.Bus.Subscribe(topic, func(_ string, _ eventbus.Event) error {
			ec.mu.Lock()
			ec.counts[topic]++
			ec.mu.Unlock()
			return nil
		})
	}

	state.Bus.Subscribe(sim.TopicActionExecuted, func(_ string, payload eventbus.Event) error {
		outcome, ok := payload["action_outcome"].(*sim.ActionOutcomeComponent)
		if !ok {
			return nil
		}
		for {
			if _, ok := ec.rewardSum.AtomicAdd(outcome.FinalReward); ok {
				break
			}
		}
		atomic.AddInt64(&ec.rewardCount, 1)
		return nil
	})

	go ec.publishLoop(updates)
	return ec
}

// averageReward returns the running mean of every finalized reward seen so
// far, or zero before the first action has been scored.
func (ec *eventCounter) averageReward() float64 {
	count := atomic.LoadInt64(&ec.rewardCount)
	if count == 0 {
		return 0
	}
	return ec.rewardSum.AtomicRead() / float64(count)
}

func (ec *eventCounter) publishLoop(updates chan<- dashboard.StatusUpdate) {
	defer close(updates)
	for range channerics.NewTicker(ec.done, 250*time.Millisecond) {
		update := dashboard.StatusUpdate{
			SimulationID:   ec.state.SimulationID,
			ActiveEntities: ec.manager.ActiveEntityCount(),
			TotalEntities:  ec.manager.TotalEntityCount(),
			EventCounts:    ec.snapshotCounts(),
			AverageReward:  ec.averageReward(),
		}
		if snap := ec.manager.LastSnapshot(); snap != nil {
			update.Tick = snap.Tick
			update.LastSnapshotTick = snap.Tick
		}
		select {
		case updates <- update:
		case <-ec.done:
			return
		}
	}
}

func (ec *eventCounter) snapshotCounts() map[string]int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]int, len(ec.counts))
	for k, v := range ec.counts {
		out[k] = v
	}
	return out
}

func (ec *eventCounter) stop() {
	close(ec.done)
}
