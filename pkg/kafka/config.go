package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Broker connection bounds. Fixed, not caller-configurable.
const (
	ConnectTimeout = 10 * time.Second
	ReadTimeout    = 20 * time.Second
)

const (
	MetadataClientSarama  = "sarama"
	MetadataClientKafkaGo = "kafka-go"
)

// Config represents Kafka-specific configuration
type Config struct {
	Version string `mapstructure:"version"`
	// Listener selects which advertised endpoint of each broker to use, e.g. "PLAINTEXT".
	// Empty means the first advertised endpoint.
	Listener                 string `mapstructure:"listener"`
	MetadataClient           string `mapstructure:"metadataClient"`
	DefaultPartitions        int32  `mapstructure:"defaultPartitions"`
	DefaultReplicationFactor int16  `mapstructure:"defaultReplicationFactor"`
	SASL                     SASL   `mapstructure:"sasl"`
	TLS                      TLS    `mapstructure:"tls"`
}

// SASL represents SASL authentication configuration
type SASL struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Algorithm string `mapstructure:"algorithm"`
	Enable    bool   `mapstructure:"enable"`
}

// TLS represents TLS configuration
type TLS struct {
	CertFile   string `mapstructure:"certFile"`
	KeyFile    string `mapstructure:"keyFile"`
	CAFile     string `mapstructure:"caFile"`
	Enable     bool   `mapstructure:"enable"`
	SkipVerify bool   `mapstructure:"skipVerify"`
}

// DefaultConfig mirrors the defaults applied when keys are missing from the config file.
func DefaultConfig() Config {
	return Config{
		Version:                  "2.1.1",
		MetadataClient:           MetadataClientSarama,
		DefaultPartitions:        1,
		DefaultReplicationFactor: 1,
		SASL:                     SASL{Algorithm: "sha512"},
	}
}

// ToSaramaConfig converts the Config to a sarama.Config
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("error parsing Kafka version: %w", err)
	}
	conf.Version = version

	if c.SASL.Enable {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch c.SASL.Algorithm {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	if c.TLS.Enable {
		tlsConfig, err := createTLSConfiguration(c.TLS)
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	conf.ClientID = "kcp"
	conf.Net.DialTimeout = ConnectTimeout
	conf.Net.ReadTimeout = ReadTimeout
	conf.Net.WriteTimeout = ReadTimeout
	conf.Metadata.AllowAutoTopicCreation = false
	conf.Metadata.Retry.Max = 0

	return conf, nil
}

// saslMechanism builds the kafka-go equivalent of the sarama SASL settings.
func (c *Config) saslMechanism() (sasl.Mechanism, error) {
	if !c.SASL.Enable {
		return nil, nil
	}
	var algo scram.Algorithm
	switch c.SASL.Algorithm {
	case "sha512":
		algo = scram.SHA512
	case "sha256":
		algo = scram.SHA256
	case "plain":
		return plain.Mechanism{Username: c.SASL.Username, Password: c.SASL.Password}, nil
	default:
		return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
	}

	mechanism, err := scram.Mechanism(algo, c.SASL.Username, c.SASL.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRAM mechanism: %w", err)
	}
	return mechanism, nil
}

func createTLSConfiguration(tlsCfg TLS) (*tls.Config, error) {
	t := &tls.Config{
		InsecureSkipVerify: tlsCfg.SkipVerify,
	}

	if tlsCfg.CAFile != "" {
		caCert, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", tlsCfg.CAFile)
		}
		t.RootCAs = caCertPool
	}

	if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}

	return t, nil
}
