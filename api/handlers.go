package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/blndgs/peerreview"
)

// CallRequest is the body of a call. Missing inputs take their defaults.
type CallRequest struct {
	Inputs map[string]string `json:"inputs"`
}

// ReadResponse carries the decoded outputs of a view function.
type ReadResponse struct {
	FunctionName string `json:"functionName"`
	Result       any    `json:"result"`
}

// AccountResponse describes the smart account calls are sent from.
type AccountResponse struct {
	Address common.Address `json:"address"`
	Owner   common.Address `json:"owner"`
	Factory common.Address `json:"factory"`
	Salt    string         `json:"salt"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type callURI struct {
	Function string `uri:"function" binding:"required,function"`
}

// ListCalls returns the registered contract functions with their default
// inputs.
func (s *Server) ListCalls(c *gin.Context) {
	c.JSON(http.StatusOK, peerreview.Calls())
}

// Account returns the smart account derived from the configured key.
func (s *Server) Account(c *gin.Context) {
	acct, err := s.svc.Account(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AccountResponse{
		Address: acct.Address,
		Owner:   acct.Owner(),
		Factory: acct.Factory,
		Salt:    acct.Salt.String(),
	})
}

// Call reads a view function or sends a sponsored write.
func (s *Server) Call(c *gin.Context) {
	var uri callURI
	if err := c.ShouldBindUri(&uri); err != nil {
		writeError(c, peerreview.ErrUnknownFunction)
		return
	}

	// An empty body, chunked or not, leaves every input at its default.
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: c.GetString(contextKeyRequestID)})
		return
	}

	fn, err := peerreview.Lookup(uri.Function)
	if err != nil {
		writeError(c, err)
		return
	}

	if fn.ReadOnly {
		result, err := s.svc.Read(c.Request.Context(), uri.Function, req.Inputs)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ReadResponse{FunctionName: uri.Function, Result: result})
		return
	}

	result, err := s.svc.SendFunction(c.Request.Context(), uri.Function, req.Inputs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusOf(err), ErrorResponse{Error: err.Error(), RequestID: c.GetString(contextKeyRequestID)})
}

// statusOf maps a pipeline error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, peerreview.ErrUnknownFunction):
		return http.StatusNotFound
	case errors.Is(err, peerreview.ErrInvalidInput),
		errors.Is(err, peerreview.ErrReadOnlyFunction),
		errors.Is(err, peerreview.ErrWriteFunction):
		return http.StatusBadRequest
	case errors.Is(err, peerreview.ErrSponsorship),
		errors.Is(err, peerreview.ErrEncoding),
		errors.Is(err, peerreview.ErrSubmission),
		errors.Is(err, peerreview.ErrChain):
		return http.StatusBadGateway
	case errors.Is(err, peerreview.ErrConfirmation):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
