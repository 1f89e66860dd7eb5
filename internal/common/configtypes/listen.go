package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseListenAddress splits a listen address into host and port.
// Accepts ":10090", "10090", "localhost:10090" and "0.0.0.0:10090".
func ParseListenAddress(listen string) (host string, port int, err error) {
	if listen == "" {
		return "", 0, fmt.Errorf("listen address is empty")
	}

	portStr := listen
	if strings.Contains(listen, ":") {
		host, portStr, err = net.SplitHostPort(listen)
		if err != nil {
			return "", 0, fmt.Errorf("invalid listen address format: %s: %w", listen, err)
		}
	}

	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in listen address: %s", listen)
	}
	return host, port, nil
}

// validateListen checks the address format and the port range for the named field.
func validateListen(field, listen string) (int, error) {
	if listen == "" {
		return 0, fmt.Errorf("%s must be specified when enabled", field)
	}
	_, port, err := ParseListenAddress(listen)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s port must be between 1 and 65535, got %d", field, port)
	}
	return port, nil
}
