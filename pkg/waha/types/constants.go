package types

const (
	APIBase          = "/api"
	EndpointSendText = "/sendText"
	EndpointSessions = "/sessions"
	EndpointStatus   = "/status"
	EndpointWebhooks = "/webhooks"
	EndpointStart    = "/start"
)

// HeaderAPIKey authenticates every call to the gateway
const HeaderAPIKey = "X-Api-Key"

// Session states reported by the gateway
const (
	SessionStatusConnected  = "CONNECTED"
	SessionStatusWorking    = "WORKING"
	SessionStatusStarting   = "STARTING"
	SessionStatusFailed     = "FAILED"
	SessionStatusStopped    = "STOPPED"
	SessionStatusScanQRCode = "SCAN_QR_CODE"
)
