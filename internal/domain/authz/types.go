package authz

import (
	"net/http"
	"net/url"

	"github.com/astro-web3/oauthgate/internal/domain/product"
	"github.com/astro-web3/oauthgate/internal/domain/token"
)

// ErrorCode is the closed set of denial reasons.
type ErrorCode string

const (
	CodeMissingAuthorization ErrorCode = "missing_authorization"
	CodeInvalidRequest       ErrorCode = "invalid_request"
	CodeInvalidAuth          ErrorCode = "invalid_auth"
	CodeInvalidAuthorization ErrorCode = "invalid_authorization"
	CodeInvalidToken         ErrorCode = "invalid_token"
	CodeAccessDenied         ErrorCode = "access_denied"
	CodeGatewayTimeout       ErrorCode = "gateway_timeout"
)

// Status maps the code to the HTTP status of the denial response.
func (c ErrorCode) Status() int {
	switch c {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeInvalidToken, CodeMissingAuthorization, CodeInvalidAuthorization, CodeInvalidAuth:
		return http.StatusUnauthorized
	case CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type Outcome int

const (
	Proceed Outcome = iota
	Deny
)

func (o Outcome) String() string {
	if o == Deny {
		return "deny"
	}
	return "proceed"
}

// Credential is the kind of credential a request was evaluated with.
type Credential string

const (
	CredentialNone   Credential = "none"
	CredentialBearer Credential = "bearer"
	CredentialAPIKey Credential = "api_key"
)

// Request is the part of an inbound request the gate reads. Header is
// mutated on Proceed: the claims header is set and the authorization header
// may be removed.
type Request struct {
	Method string
	// Path may carry a query string; it is ignored for matching.
	Path   string
	Header http.Header
	Query  url.Values
	Proxy  product.Proxy
}

// NewRequest builds a Request from a parsed request URI.
func NewRequest(method string, uri *url.URL, header http.Header, proxy product.Proxy) *Request {
	if header == nil {
		header = make(http.Header)
	}
	return &Request{
		Method: method,
		Path:   uri.RequestURI(),
		Header: header,
		Query:  uri.Query(),
		Proxy:  proxy,
	}
}

// Decision is the terminal outcome of Gate.Evaluate.
type Decision struct {
	Outcome Outcome
	Code    ErrorCode
	Message string
	// Claims is set only when the request was authorized.
	Claims        token.Claims
	Credential    Credential
	Authenticated bool
	// StrippedHeader names the header removed from the forwarded request.
	StrippedHeader string
}

func (d *Decision) Allowed() bool {
	return d.Outcome == Proceed
}

// Status is 200 for Proceed and the code's status otherwise.
func (d *Decision) Status() int {
	if d.Allowed() {
		return http.StatusOK
	}
	return d.Code.Status()
}

// ErrorResponse is the JSON body written for a denial.
type ErrorResponse struct {
	Error       ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (d *Decision) ErrorBody() ErrorResponse {
	return ErrorResponse{Error: d.Code, Description: d.Message}
}

// Stats receives one call per denial response.
type Stats interface {
	IncrementStatusCount(status int)
}

type nopStats struct{}

func (nopStats) IncrementStatusCount(int) {}
