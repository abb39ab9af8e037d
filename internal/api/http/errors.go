package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/control"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/utils"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidInput),
		errors.Is(err, hub.ErrInvalidKey),
		errors.Is(err, hub.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrSpawnFailure):
		return http.StatusBadGateway
	case errors.Is(err, control.ErrQuarantined),
		errors.Is(err, supervisor.ErrShuttingDown),
		errors.Is(err, hub.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...} with the mapped status. A
// quarantined node also gets a Retry-After header.
func respondError(c *gin.Context, err error) {
	var qe *control.QuarantineError
	if errors.As(err, &qe) {
		secs := int(math.Ceil(qe.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
