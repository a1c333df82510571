package api

import "encoding/json"

// Message types on the websocket. The frontend sends and receives the same
// envelope: {"type": ..., "data": ...}.
const (
	TypeSubscriptions = "Subscriptions" // get or set subscriptions
	TypePipeline      = "Pipeline"      // get or set pipeline
	TypeDevices       = "Devices"       // get device list
	TypeDevice        = "Device"        // get or set device
	TypeError         = "Error"         // error message
)

// envelope is the wire frame. Data stays raw until the type is known.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// outEnvelope is the outbound counterpart; Data is marshalled in place.
type outEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// subscriptionsData is the inbound payload for TypeSubscriptions.
type subscriptionsData struct {
	Subscriptions []string `json:"Subscriptions"`
}

// pipelineData is the inbound payload for TypePipeline.
type pipelineData struct {
	Pipeline json.RawMessage `json:"Pipeline"`
}

// deviceData is the inbound payload for TypeDevice.
type deviceData struct {
	Device struct {
		ID *string `json:"id"`
	} `json:"Device"`
}

// errorData is the outbound payload for TypeError.
type errorData struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}
