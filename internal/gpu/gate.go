package gpu

import "time"

// computeGate tracks the compute timeline value the next graphics
// submission must not precede. Recording is monotonic; a successful
// await disarms the gate, a failed one leaves it armed so a retried
// frame still waits.
type computeGate struct {
	pending uint64
}

// record arms the gate with a compute submission value. Stale values
// never lower an armed gate.
func (g *computeGate) record(v uint64) {
	if v > g.pending {
		g.pending = v
	}
}

// armed reports whether a compute wait is outstanding.
func (g *computeGate) armed() bool { return g.pending != 0 }

// await blocks on the waiter until the recorded value is reached, then
// disarms. A disarmed gate returns immediately.
func (g *computeGate) await(w frameWaiter, timeout time.Duration) error {
	if g.pending == 0 {
		return nil
	}
	if err := w.WaitFor(g.pending, timeout); err != nil {
		return err
	}
	g.pending = 0
	return nil
}

// gatedSubmit waits out the compute gate before running submit, so a
// graphics submission can never precede the compute work it samples.
func gatedSubmit(g *computeGate, w frameWaiter, timeout time.Duration, submit func() (uint64, error)) (uint64, error) {
	if err := g.await(w, timeout); err != nil {
		return 0, err
	}
	return submit()
}
