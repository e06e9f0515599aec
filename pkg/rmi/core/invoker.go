package core

import "sync"

// Invoker controls how the runtime spawns its routines, so tests can
// supervise everything that was started.
type Invoker interface {
	// Spawn starts f on its own routine.
	Spawn(f func())
}

type defaultInvoker struct {
	group *sync.WaitGroup
}

func (d *defaultInvoker) Spawn(f func()) {
	d.group.Add(1)
	go func() {
		defer d.group.Done()
		f()
	}()
}

var (
	invokerOnce sync.Once
	invoker     Invoker
)

// InvokerInstance returns the process-wide invoker.
func InvokerInstance() Invoker {
	invokerOnce.Do(func() {
		invoker = &defaultInvoker{group: &sync.WaitGroup{}}
	})
	return invoker
}
