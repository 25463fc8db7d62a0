package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Destination identifies one fan-out target of the relay. The destination set
// is fixed for the lifetime of a connection.
type Destination struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BuildEndpointURL constructs the relay connection URL. The destination list
// is embedded as percent-encoded JSON alongside the bearer token and the
// free-form device name.
func BuildEndpointURL(base string, destinations []Destination, token, deviceName string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("relay endpoint cannot be empty")
	}

	if len(destinations) == 0 {
		return "", fmt.Errorf("destination list cannot be empty")
	}

	for i, d := range destinations {
		if d.Name == "" {
			return "", fmt.Errorf("destination %d: name cannot be empty", i)
		}
		if d.URL == "" {
			return "", fmt.Errorf("destination %q: url cannot be empty", d.Name)
		}
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse relay endpoint %s: %w", base, err)
	}

	encoded, err := json.Marshal(destinations)
	if err != nil {
		return "", fmt.Errorf("failed to encode destination list: %w", err)
	}

	q := u.Query()
	q.Set("destinations", string(encoded))
	q.Set("token", token)
	q.Set("device_name", deviceName)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
