package appinfo

import (
	"time"
)

var (
	Name        = "mockgw"
	Title       = "Mock Gateway"
	Description = "Development-time mock API gateway: REST handlers, a filesystem-backed resource layer, and WebSocket rooms."

	// Application version
	Version = "0.0.11"

	StartTime = time.Now()
)
