package opstelemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectDisabledWhenNoAddress(t *testing.T) {
	p, err := Connect(Config{})
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	require.NoError(t, p.Publish(Snapshot{SubscriberCount: 3}))
	p.Close() // must not panic
}
