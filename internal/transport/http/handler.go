package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/astro-web3/oauthgate/internal/app/authz"
	"github.com/astro-web3/oauthgate/internal/config"
	authzdomain "github.com/astro-web3/oauthgate/internal/domain/authz"
	"github.com/astro-web3/oauthgate/internal/domain/product"
	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/astro-web3/oauthgate/pkg/tracer"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// HeaderStrip tells the gateway which request header to drop before
// forwarding.
const HeaderStrip = "X-Oauthgate-Strip-Header"

// ProxyHeaders names the headers describing the original request on a
// forward-auth call.
type ProxyHeaders struct {
	Name            string
	BasePath        string
	Method          string
	URI             string
	DefaultName     string
	DefaultBasePath string
}

func ProxyHeadersFromConfig(cfg *config.Config) ProxyHeaders {
	return ProxyHeaders{
		Name:            cfg.Proxy.NameHeader,
		BasePath:        cfg.Proxy.BasePathHeader,
		Method:          cfg.Proxy.MethodHeader,
		URI:             cfg.Proxy.URIHeader,
		DefaultName:     cfg.Proxy.DefaultName,
		DefaultBasePath: cfg.Proxy.DefaultBasePath,
	}
}

// Proxy reads the proxy descriptor from h, falling back to the defaults.
func (p ProxyHeaders) Proxy(h http.Header) product.Proxy {
	proxy := product.Proxy{Name: p.DefaultName, BasePath: p.DefaultBasePath}
	if v := h.Get(p.Name); v != "" {
		proxy.Name = v
	}
	if v := h.Get(p.BasePath); v != "" {
		proxy.BasePath = v
	}
	return proxy
}

type Handler struct {
	appService authz.Service
	headers    ProxyHeaders
}

func NewHandler(appService authz.Service, headers ProxyHeaders) *Handler {
	return &Handler{
		appService: appService,
		headers:    headers,
	}
}

// Check is the forward-auth endpoint. It answers 200 with the headers to add
// upstream, or the denial status and JSON body.
func (h *Handler) Check(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Check")
	defer span.End()

	method := c.GetHeader(h.headers.Method)
	if method == "" {
		method = c.Request.Method
	}

	uri := c.GetHeader(h.headers.URI)
	if uri == "" {
		uri = c.Param("path")
		if c.Request.URL.RawQuery != "" {
			uri += "?" + c.Request.URL.RawQuery
		}
	}

	target, err := url.ParseRequestURI(uri)
	if err != nil {
		logger.WarnContext(ctx, "invalid forwarded uri", slog.String("uri", uri), slog.String("error", err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, authzdomain.ErrorResponse{
			Error:       authzdomain.CodeInvalidRequest,
			Description: "Invalid forwarded URI",
		})
		return
	}

	proxy := h.headers.Proxy(c.Request.Header)
	span.SetAttributes(
		attribute.String("proxy.name", proxy.Name),
		attribute.String("http.target", target.Path),
	)

	header := c.Request.Header.Clone()
	req := authzdomain.NewRequest(method, target, header, proxy)
	decision := h.appService.Evaluate(ctx, req)

	if !decision.Allowed() {
		span.SetAttributes(attribute.String("authz.code", string(decision.Code)))
		c.AbortWithStatusJSON(decision.Status(), decision.ErrorBody())
		return
	}

	if decision.Authenticated {
		encoded, err := decision.Claims.Encode()
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode claims", slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, authzdomain.ErrorResponse{
				Error: authzdomain.CodeInvalidToken,
			})
			return
		}
		c.Header(authzdomain.HeaderClaims, encoded)
	}
	if decision.StrippedHeader != "" {
		c.Header(HeaderStrip, decision.StrippedHeader)
	}
	c.Status(http.StatusOK)
}

func (h *Handler) CacheSize(c *gin.Context) {
	n, err := h.appService.CacheSize(c.Request.Context())
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "failed to read api key cache size", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": n})
}

func (h *Handler) ClearCache(c *gin.Context) {
	n, err := h.appService.ClearCache(c.Request.Context())
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "failed to clear api key cache", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Middleware runs the gate in front of gin routes. On Proceed the request
// headers are rewritten in place; on Deny the chain is aborted.
func Middleware(appService authz.Service, proxyFn func(*gin.Context) product.Proxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := authzdomain.NewRequest(c.Request.Method, c.Request.URL, c.Request.Header, proxyFn(c))
		decision := appService.Evaluate(c.Request.Context(), req)

		if !decision.Allowed() {
			c.AbortWithStatusJSON(decision.Status(), decision.ErrorBody())
			return
		}

		c.Request.Header = req.Header
		if decision.Authenticated {
			c.Set(ContextKeyClaims, decision.Claims)
		}
		c.Next()
	}
}

// ContextKeyClaims holds the authorized claims in the gin context.
const ContextKeyClaims = "oauthgate.claims"

// StaticProxy returns a proxyFn for routes that all belong to one proxy.
func StaticProxy(name, basePath string) func(*gin.Context) product.Proxy {
	proxy := product.Proxy{Name: name, BasePath: strings.TrimSuffix(basePath, "/")}
	return func(*gin.Context) product.Proxy {
		return proxy
	}
}
