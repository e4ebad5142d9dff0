package controllers

import (
	stderrors "errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"idprivacy/errs"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.Cryptographic:
		return http.StatusUnprocessableEntity
	case errs.RelayRejection:
		return http.StatusBadGateway
	case errs.TransportTimeout:
		return http.StatusGatewayTimeout
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with its status. Bundler rejections carry the
// bundler's code and data.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error(), "kind": errs.KindOf(err).String()}
	var relay *errs.RelayError
	if stderrors.As(err, &relay) {
		body["code"] = relay.Code
		if relay.Data != nil {
			body["data"] = relay.Data
		}
	}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, body)
}

// bindJSON decodes the request body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": errs.Validation.String()})
		return false
	}
	return true
}
