//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
)

func TestNATSNotifierPublishes(t *testing.T) {
	ctx := context.Background()
	c, err := tcnats.Run(ctx, "nats:latest", tcnats.WithArgument("--js", ""))
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Terminate(context.Background()) //nolint:errcheck
	})
	url, err := c.ConnectionString(ctx)
	require.NoError(t, err)

	for _, stream := range []string{"", "kcp-events"} {
		t.Run("stream="+stream, func(t *testing.T) {
			n, err := NewNATSNotifier(Config{Servers: []string{url}, SubjectPrefix: "kcp", Stream: stream}, nil)
			require.NoError(t, err)
			defer n.Close()

			sub, err := nats.Connect(url)
			require.NoError(t, err)
			defer sub.Close()
			msgs := make(chan *nats.Msg, 1)
			s, err := sub.ChanSubscribe("kcp.>", msgs)
			require.NoError(t, err)
			defer s.Unsubscribe() //nolint:errcheck
			require.NoError(t, sub.Flush())

			sent := NewEvent(TopicCreated, 1, "clicks")
			require.NoError(t, n.Notify(ctx, sent))

			select {
			case msg := <-msgs:
				assert.Equal(t, "kcp.topic.created", msg.Subject)
				var got Event
				require.NoError(t, json.Unmarshal(msg.Data, &got))
				assert.Equal(t, sent.ID, got.ID)
			case <-time.After(5 * time.Second):
				t.Fatal("event not received")
			}
		})
	}
}
