package domain

import "time"

// TokenEvent announces a handshake status change to whoever is listening.
// Delivery is best-effort and unordered relative to other transports; the
// token store remains the source of truth.
type TokenEvent struct {
	Token  string      `json:"token"`
	Method Method      `json:"method"`
	Status TokenStatus `json:"status"`
	At     time.Time   `json:"at"`
}
