package protocol

import "time"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// Alert is a broadcast health alert. Timestamp is kept as the backend's raw
// string since it is only displayed.
type Alert struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AlertBroadcast is published on the bus when a worker posts an alert.
type AlertBroadcast struct {
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

type BroadcastAlertRequest struct {
	Message string `json:"message"`
}

// InventoryItem is one row of the worker supply inventory.
type InventoryItem struct {
	ID       int64  `json:"id,omitempty"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type UpdateInventoryRequest struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorBody is the failure shape returned by the backend.
type ErrorBody struct {
	Detail string `json:"detail"`
}

const (
	PathChat            = "/api/chat"
	PathGetAlerts       = "/api/get-alerts"
	PathWorkerLogin     = "/api/worker/login"
	PathBroadcastAlert  = "/api/worker/broadcast-alert"
	PathClearAlerts     = "/api/worker/clear-alerts"
	PathGetInventory    = "/api/worker/get-inventory"
	PathUpdateInventory = "/api/worker/update-inventory"
)

// AudioFrame is audio streamed from a microphone bridge. Encoding is one of
// the Encoding constants; empty means 16-bit little-endian PCM.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding,omitempty"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

const (
	EncodingPCM16 = "pcm16"
	EncodingMuLaw = "mulaw"
	EncodingALaw  = "alaw"
)

const (
	SubjectAlertBroadcast   = "alerts.broadcast"
	SubjectAlertsCleared    = "alerts.cleared"
	SubjectAudioFramePrefix = "audio.frame"
)
