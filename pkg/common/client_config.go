package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/panjf2000/gnet/v2"
)

type ClientConfig struct {
	Addr        string        `help:"Address of the RESP server (host:port)" name:"addr" short:"a" default:"127.0.0.1:6379"`
	DialTimeout time.Duration `help:"Timeout for establishing the TCP connection" name:"dial-timeout" default:"3s"`
	Timeout     time.Duration `help:"Deadline applied to each command, 0 disables it" name:"timeout" default:"0s"`
}

// Endpoint splits Addr into host and port.
func (c *ClientConfig) Endpoint() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address: %s", c.Addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid server port: %s", portStr)
	}
	return host, port, nil
}

func (c *ClientConfig) Validate() error {
	if _, _, err := c.Endpoint(); err != nil {
		return err
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must not be negative: %s", c.DialTimeout)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("command timeout must not be negative: %s", c.Timeout)
	}
	return nil
}

type WebServerConfig struct {
	EnablePprof bool `help:"Enable pprof on the admin server" name:"pprof" default:"true"`
}

type MetricsConfig struct {
	EnableMetrics   bool   `help:"Enable metrics collection" name:"enable" default:"false"`
	MetricsPath     string `help:"Metrics path" name:"path" default:"/metrics"`
	MetricsSinkType string `help:"Metrics sink type. support prometheus, in-memory and all." name:"sink" default:"prometheus"`
}

func (m *MetricsConfig) Validate() error {
	switch strings.ToLower(m.MetricsSinkType) {
	case "prometheus", "in-memory", "all":
	default:
		return fmt.Errorf("invalid metrics sink: %s (must be 'prometheus', 'in-memory' or 'all')", m.MetricsSinkType)
	}
	if !strings.HasPrefix(m.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with '/': %s", m.MetricsPath)
	}
	return nil
}

type ServerConfig struct {
	Host        string          `help:"Interface the mock server listens on" name:"host" default:"127.0.0.1"`
	Port        int             `help:"Port for the RESP mock server" name:"port" default:"6380"`
	ServicePort int             `help:"Admin port shared by http and GRPC health. 0 disables it." name:"service-port" default:"7080"`
	MultiCore   bool            `help:"Enable multi-core support" default:"true"`
	CoreNum     int             `help:"Number of event loops to use" default:"0"`
	WebServer   WebServerConfig `embed:"" prefix:"web."`
	Metrics     MetricsConfig   `embed:"" prefix:"metrics."`
}

// Addr is the gnet protocol address of the RESP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("tcp://%s", c.ListenAddr())
}

// ListenAddr is the plain host:port a client dials.
func (c *ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ServiceListener() (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.ServicePort)))
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}
	if c.ServicePort < 0 || c.ServicePort > 65535 {
		return fmt.Errorf("invalid service port number: %d", c.ServicePort)
	}
	if c.ServicePort == c.Port {
		return fmt.Errorf("service port must differ from the RESP port: %d", c.Port)
	}
	if c.Metrics.EnableMetrics {
		return c.Metrics.Validate()
	}
	return nil
}

func (c *ServerConfig) GNetOptions() []gnet.Option {
	var ops []gnet.Option
	if c.MultiCore {
		ops = append(ops, gnet.WithMulticore(true))
	}
	if c.CoreNum > 0 {
		ops = append(ops, gnet.WithNumEventLoop(c.CoreNum))
	}
	return ops
}

type BenchConfig struct {
	Conns     int    `help:"Number of connections on the ring" name:"conns" default:"4"`
	Workers   int    `help:"Number of concurrent workers" name:"workers" default:"16"`
	Requests  int    `help:"Total number of requests" name:"requests" short:"n" default:"10000"`
	Keyspace  int    `help:"Number of distinct keys" name:"keyspace" default:"1000"`
	ValueSize int    `help:"Size in bytes of SET payloads" name:"value-size" default:"16"`
	KeyPrefix string `help:"Prefix of generated keys" name:"key-prefix" default:"bench:"`
}

func (b *BenchConfig) Validate() error {
	if b.Conns <= 0 {
		return fmt.Errorf("conns must be positive: %d", b.Conns)
	}
	if b.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", b.Workers)
	}
	if b.Requests <= 0 {
		return fmt.Errorf("requests must be positive: %d", b.Requests)
	}
	if b.Keyspace <= 0 {
		return fmt.Errorf("keyspace must be positive: %d", b.Keyspace)
	}
	if b.ValueSize < 0 {
		return fmt.Errorf("value size must not be negative: %d", b.ValueSize)
	}
	return nil
}
