package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDHeader carries the authenticated platform user id, injected by the
// edge gateway after authentication. This service trusts it as-is.
const UserIDHeader = "X-User-ID"

// callerID extracts the authenticated user from the request headers.
// Returns false after writing a 401 when the header is missing or malformed.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		RespondUnauthorized(c, "missing "+UserIDHeader+" header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondUnauthorized(c, "malformed "+UserIDHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// optionalCallerID extracts the user id when present, without failing the
// request. Used by public reads where anonymous access is allowed.
func optionalCallerID(c *gin.Context) uuid.UUID {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
