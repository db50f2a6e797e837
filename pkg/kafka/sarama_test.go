package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionsFromSarama(t *testing.T) {
	newResponse := func(topics ...*sarama.TopicMetadata) *sarama.MetadataResponse {
		resp := &sarama.MetadataResponse{Topics: topics}
		resp.AddBroker("kafka1:9092", 1)
		resp.AddBroker("kafka2:9092", 2)
		return resp
	}

	t.Run("maps broker ids to hosts", func(t *testing.T) {
		resp := newResponse(&sarama.TopicMetadata{
			Name: "clicks",
			Partitions: []*sarama.PartitionMetadata{
				{ID: 0, Leader: 1, Replicas: []int32{1, 2}, Isr: []int32{1}},
				{ID: 1, Leader: 2, Replicas: []int32{2, 3}, Isr: []int32{2}},
			},
		})

		partitions, err := partitionsFromSarama(resp, "clicks")
		require.NoError(t, err)
		require.Len(t, partitions, 2)
		assert.Equal(t, PartitionStatus{ID: 0, Leader: "kafka1", Replicas: []string{"kafka1", "kafka2"}, InSyncReplicas: []string{"kafka1"}}, partitions[0])
		// broker 3 is not in the broker list
		assert.Equal(t, []string{"kafka2", "3"}, partitions[1].Replicas)
		assert.True(t, partitions[0].UnderReplicated())
	})

	t.Run("unknown topic yields no partitions", func(t *testing.T) {
		resp := newResponse(&sarama.TopicMetadata{Name: "ghost", Err: sarama.ErrUnknownTopicOrPartition})

		partitions, err := partitionsFromSarama(resp, "ghost")
		require.NoError(t, err)
		assert.Empty(t, partitions)
	})

	t.Run("topic error", func(t *testing.T) {
		resp := newResponse(&sarama.TopicMetadata{Name: "secret", Err: sarama.ErrTopicAuthorizationFailed})

		_, err := partitionsFromSarama(resp, "secret")
		assert.ErrorIs(t, err, sarama.ErrTopicAuthorizationFailed)
	})
}

func TestToSaramaConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		conf, err := cfg.ToSaramaConfig()
		require.NoError(t, err)
		assert.Equal(t, "2.1.1", conf.Version.String())
		assert.False(t, conf.Metadata.AllowAutoTopicCreation)
		assert.Equal(t, ConnectTimeout, conf.Net.DialTimeout)
		assert.False(t, conf.Net.SASL.Enable)
	})

	t.Run("scram", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SASL = SASL{Enable: true, Username: "u", Password: "p", Algorithm: "sha256"}
		conf, err := cfg.ToSaramaConfig()
		require.NoError(t, err)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA256), conf.Net.SASL.Mechanism)
		require.NotNil(t, conf.Net.SASL.SCRAMClientGeneratorFunc)
		assert.IsType(t, &XDGSCRAMClient{}, conf.Net.SASL.SCRAMClientGeneratorFunc())
	})

	t.Run("invalid algorithm", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SASL = SASL{Enable: true, Algorithm: "md5"}
		_, err := cfg.ToSaramaConfig()
		assert.Error(t, err)
		_, err = cfg.saslMechanism()
		assert.Error(t, err)
	})

	t.Run("invalid version", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Version = "not-a-version"
		_, err := cfg.ToSaramaConfig()
		assert.Error(t, err)
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TLS = TLS{Enable: true, CAFile: "/nonexistent/ca.pem"}
		_, err := cfg.ToSaramaConfig()
		assert.Error(t, err)
	})
}
