package config

import (
	"time"
)

// GRPCServerConfig configures the gRPC analyze server.
type GRPCServerConfig struct {
	Port string `envconfig:"PORT" default:"50051"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// gRPC specific
	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	MaxRecvMsgBytes      int           `envconfig:"MAX_RECV_MSG_BYTES" default:"4194304" validate:"min=1024"` // 4MB
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

// Addr returns host:port for net.Listen.
func (c *GRPCServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate performs validation on the GRPCServerConfig.
func (c *GRPCServerConfig) Validate() error {
	// Validate port
	if err := validatePort(c.Port, "grpc server"); err != nil {
		return err
	}

	// Validate host
	if err := validateHost(c.Host, "grpc server"); err != nil {
		return err
	}

	return nil
}
