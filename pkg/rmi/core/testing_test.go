package core

import (
	"time"

	"github.com/jabolina/go-rmi/pkg/rmi/definition"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

// Shared builders for the core tests.

func testConfiguration(name string) *types.Configuration {
	conf := &types.Configuration{
		Name:             name,
		Bind:             "127.0.0.1:0",
		Lease:            types.DefaultLease,
		DefaultAuthorize: true,
		RemoteException:  true,
		Workers:          types.DefaultWorkers,
		SendQueueDepth:   types.DefaultSendQueueDepth,
		DialTimeout:      2 * time.Second,
		Logger:           definition.NewDefaultLogger(name),
		Codec:            definition.NewDefaultCodec(),
	}
	conf.Sane()
	return conf
}

func testExports(name string) *Exports {
	conf := testConfiguration(name)
	return NewExports(conf, conf.Logger)
}

// WaitThisOrTimeout runs apply and reports whether it finished before
// the timeout.
func WaitThisOrTimeout(apply func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		apply()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
