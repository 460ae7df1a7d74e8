package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyquest/wa-gateway/internal/apperr"
)

// ok writes the common {success:true, data} response shape (spec §4.8).
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// fail maps an error kind to its HTTP status and writes the common
// {success:false, error} shape (spec §4.8, §7 "Propagation policy").
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var validation apperr.Validation
	var notFound apperr.NotFound
	var rateLimited apperr.RateLimited
	var terminal apperr.TerminalClient

	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &rateLimited):
		status = http.StatusTooManyRequests
	case errors.As(err, &terminal):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// badRequest writes a 400 for a request that never reached the domain
// layer (JSON decode failure, missing required field).
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
