package work

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/events"
)

// WakeEvents are the bus events that make freshly arrived data worth processing.
var WakeEvents = []events.EventType{events.MarketRefresh}

// RegisterTriggers wires completions and bus events to the processor:
//   - a completed item clears the completions of the work types depending on it
//   - a WakeEvents event clears the dependents of market:refresh
//
// Both then trigger the processor. Listening stops when ctx is cancelled.
func RegisterTriggers(ctx context.Context, p *Processor, bus *events.Bus, log zerolog.Logger) {
	log = log.With().Str("component", "work_triggers").Logger()

	clearDependents := func(typeID string) {
		for _, dep := range p.registry.GetDependents(typeID) {
			p.completion.ClearByTypeID(dep)
			log.Debug().Str("work_type", dep).Str("cause", typeID).Msg("Cleared dependent completions")
		}
	}

	p.OnCompleted(func(item *WorkItem) {
		clearDependents(item.TypeID)
		p.Trigger()
	})

	if bus == nil {
		return
	}
	sub := bus.Subscribe(16, WakeEvents...)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				// Events emitted by the work itself already cleared its dependents
				if e.Module == module {
					continue
				}
				clearDependents(TypeMarketRefresh)
				p.Trigger()
			}
		}
	}()
}
