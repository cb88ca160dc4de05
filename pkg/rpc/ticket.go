package rpc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TicketExpiry extracts the expiry claim from a JWT-shaped ticket without
// verifying its signature. Verification is the server's job; the client only
// uses the expiry for logging and to avoid dialing with a ticket that is
// already dead. Returns false for opaque tickets.
func TicketExpiry(ticket string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(ticket, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
