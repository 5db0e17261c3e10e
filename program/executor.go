package program

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/symflow/core"
)

// nodeState is the per-run bookkeeping of one graph node. Programs keep no
// run state between calls; every run allocates fresh states.
type nodeState struct {
	depCount atomic.Int32
	settle   sync.Once
	outputs  []*core.JsonDataModel
}

// settled accounts for the node exactly once, whether it ran, failed or was
// skipped.
func (s *nodeState) settled(wg *sync.WaitGroup) {
	s.settle.Do(wg.Done)
}

// run executes the graph over the fed input values. Nodes whose dependencies
// are all satisfied run concurrently on a worker pool; the first error
// cancels the run context and skips all dependents.
func (p *Program) run(ctx context.Context, fed []*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(p.nodes) == 0 {
		return p.gather(fed, nil), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make([]*nodeState, len(p.nodes))
	for i := range states {
		states[i] = &nodeState{}
		states[i].depCount.Store(int32(len(p.deps[i])))
	}

	ready := make(chan int, len(p.nodes))
	for i := range p.nodes {
		if len(p.deps[i]) == 0 {
			ready <- i
		}
	}

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		firstErr error
	)

	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(len(p.nodes))

	workers := p.workers
	if workers > len(p.nodes) {
		workers = len(p.nodes)
	}

	for w := 0; w < workers; w++ {
		go p.worker(runCtx, ready, states, fed, &wg, fail)
	}

	wg.Wait()
	close(ready)

	if firstErr != nil {
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.gather(fed, states), nil
}

// worker drains the ready channel, executing one node at a time and
// unlocking dependents whose dependency counts reach zero.
func (p *Program) worker(ctx context.Context, ready chan int, states []*nodeState, fed []*core.JsonDataModel, wg *sync.WaitGroup, fail func(error)) {
	for idx := range ready {
		state := states[idx]
		node := p.nodes[idx]

		if ctx.Err() != nil {
			state.settle.Do(func() {
				p.logger.Debug("program.skip", "program", p.name, "module", node.Module().Name())
				wg.Done()
			})
			// Cascade so nodes waiting on this one settle too; otherwise a
			// cancelled run with independent branches would never drain.
			p.skipDependents(idx, states, wg)
			continue
		}

		inputs := make([]*core.JsonDataModel, len(node.Inputs()))
		for i, sym := range node.Inputs() {
			inputs[i] = p.valueOf(sym, fed, states)
		}

		outputs, err := node.Module().Call(ctx, inputs...)
		if err != nil {
			fail(fmt.Errorf("program %s: module %s: %w", p.name, node.Module().Name(), err))
			p.skipDependents(idx, states, wg)
			state.settled(wg)
			continue
		}

		if len(outputs) != len(node.Outputs()) {
			fail(fmt.Errorf("program %s: module %s returned %d outputs, expected %d", p.name, node.Module().Name(), len(outputs), len(node.Outputs())))
			p.skipDependents(idx, states, wg)
			state.settled(wg)
			continue
		}

		state.outputs = outputs

		for _, dep := range p.dependents[idx] {
			if states[dep].depCount.Add(-1) == 0 {
				ready <- dep
			}
		}

		// Settling after the notify loop keeps this node counted in the wait
		// group while it sends, so the channel cannot be closed under a send.
		state.settled(wg)
	}
}

// skipDependents settles every downstream node so the run can drain after a
// failure. The recursion happens inside the once so each node is skipped at
// most one time.
func (p *Program) skipDependents(idx int, states []*nodeState, wg *sync.WaitGroup) {
	for _, dep := range p.dependents[idx] {
		d := dep
		states[d].settle.Do(func() {
			p.logger.Debug("program.skip", "program", p.name, "module", p.nodes[d].Module().Name())
			wg.Done()
			p.skipDependents(d, states, wg)
		})
	}
}

// valueOf resolves the runtime value a symbol stands for in this run.
func (p *Program) valueOf(sym *core.SymbolicDataModel, fed []*core.JsonDataModel, states []*nodeState) *core.JsonDataModel {
	if pos, ok := p.inputPos[sym]; ok {
		return fed[pos]
	}

	return states[p.nodeIndex[sym.Origin().ID()]].outputs[sym.Index()]
}

// gather assembles the program outputs from run state.
func (p *Program) gather(fed []*core.JsonDataModel, states []*nodeState) []*core.JsonDataModel {
	out := make([]*core.JsonDataModel, len(p.outputSrc))
	for i, ref := range p.outputSrc {
		if ref.node < 0 {
			out[i] = fed[ref.index]
			continue
		}

		out[i] = states[ref.node].outputs[ref.index]
	}

	return out
}
