package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is a (host, port) pair where a domain exposes a service.
type Endpoint struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`
}

// NewEndpoint validates and returns an Endpoint.
func NewEndpoint(host string, port int) (Endpoint, error) {
	ep := Endpoint{Host: strings.TrimSpace(host), Port: port}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Validate checks that the endpoint names a host and a usable port.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("endpoint host cannot be empty")
	}
	if strings.ContainsAny(e.Host, " /\t") {
		return fmt.Errorf("endpoint host %q contains invalid characters", e.Host)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("endpoint port %d out of range", e.Port)
	}
	return nil
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// String returns host:port, bracketing IPv6 literals.
func (e Endpoint) String() string {
	host := e.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(e.Port)
}
