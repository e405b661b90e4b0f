package queue

// Gate is the idle gate of a stage: the stage holds it for one
// pop-and-process cycle, and drain operations take it to wait for the
// stage to be between cycles.
type Gate struct {
	ch chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}, 1)}
}

// Enter blocks until the gate is free and takes it.
func (g *Gate) Enter() {
	g.ch <- struct{}{}
}

// Leave frees the gate.
func (g *Gate) Leave() {
	<-g.ch
}

// Hold takes the gate and returns the function that frees it.
func (g *Gate) Hold() func() {
	g.Enter()
	return g.Leave
}
