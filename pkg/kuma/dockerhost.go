package kuma

import "encoding/json"

const (
	DockerConnectionSocket = "socket"
	DockerConnectionTCP    = "tcp"
)

// DockerHost is a docker daemon registered on the server for docker-type
// monitors. The wire names differ from the label names; the aliases
// connection_type, host, and path are accepted on decode.
type DockerHost struct {
	ID             *Int    `json:"id,omitempty"`
	Name           *string `json:"name,omitempty"`
	ConnectionType *string `json:"dockerType,omitempty"`
	Host           *string `json:"dockerDaemon,omitempty"`
	UserID         *Int    `json:"userId,omitempty"`
}

func (d *DockerHost) UnmarshalJSON(data []byte) error {
	type wire DockerHost
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var aliases struct {
		ConnectionType *string `json:"connection_type"`
		Host           *string `json:"host"`
		Path           *string `json:"path"`
	}
	if err := json.Unmarshal(data, &aliases); err != nil {
		return err
	}
	if w.ConnectionType == nil {
		w.ConnectionType = aliases.ConnectionType
	}
	if w.Host == nil {
		w.Host = aliases.Host
	}
	if w.Host == nil {
		w.Host = aliases.Path
	}

	*d = DockerHost(w)
	return nil
}
