package rmi

import (
	"github.com/jabolina/go-rmi/pkg/rmi/definition"
	"github.com/jabolina/go-rmi/pkg/rmi/types"
)

// DefaultConfiguration creates a configuration with the default
// stack: loopback listener on an ephemeral port, JSON value codec and
// the logrus backed logger.
func DefaultConfiguration(name string) *types.Configuration {
	return &types.Configuration{
		Name:             name,
		Bind:             "127.0.0.1:0",
		Lease:            types.DefaultLease,
		DefaultAuthorize: true,
		RemoteException:  true,
		Workers:          types.DefaultWorkers,
		SendQueueDepth:   types.DefaultSendQueueDepth,
		PingInterval:     types.DefaultPingInterval,
		DialTimeout:      types.DefaultDialTimeout,
		Logger:           definition.NewDefaultLogger(name),
		Codec:            definition.NewDefaultCodec(),
	}
}
