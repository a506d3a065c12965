package eventbus

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

// The amqp library closes channels registered via NotifyClose and
// NotifyPublish when the underlying connection or channel shuts down. Close
// must not close them a second time.
func TestCloseAfterLibraryClosedNotifyChannels(t *testing.T) {
	rmq := &RabbitMQManager{
		notifyConnClose: make(chan *amqp.Error),
		notifyChanClose: make(chan *amqp.Error),
		notifyConfirm:   make(chan amqp.Confirmation),
	}
	rmq.isReady.Store(true)
	close(rmq.notifyConnClose)
	close(rmq.notifyChanClose)
	close(rmq.notifyConfirm)

	require.NotPanics(t, rmq.Close)
	require.False(t, rmq.IsReady())
}

func TestCloseIsIdempotent(t *testing.T) {
	rmq := &RabbitMQManager{}

	require.NotPanics(t, rmq.Close)
	require.NotPanics(t, rmq.Close)
	require.False(t, rmq.IsReady())
}
