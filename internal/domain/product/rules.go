package product

import (
	"slices"
	"strings"

	"github.com/astro-web3/oauthgate/internal/domain/token"
)

// Proxy identifies the routable API surface a request targets.
type Proxy struct {
	Name     string `json:"name"`
	BasePath string `json:"base_path"`
}

// Rules maps products to the proxies and path patterns they entitle. Rules are
// read-only once loaded and safe for concurrent use.
type Rules struct {
	ProductToProxy       map[string][]string `yaml:"product_to_proxy" json:"product_to_proxy"`
	ProductToAPIResource map[string][]string `yaml:"product_to_api_resource" json:"product_to_api_resource"`
}

// IsAuthorized reports whether any product in claims grants access to
// requestPath on proxy. It never verifies the token itself. With productOnly
// the proxy-name check is skipped and only path patterns decide.
func (r *Rules) IsAuthorized(claims token.Claims, proxy Proxy, requestPath string, productOnly bool) bool {
	if r == nil {
		return false
	}

	products := claims.Products()
	if len(products) == 0 {
		return false
	}

	path := pathOnly(requestPath)
	for _, name := range products {
		if r.productGrants(name, proxy, path, productOnly) {
			return true
		}
	}
	return false
}

func (r *Rules) productGrants(name string, proxy Proxy, path string, productOnly bool) bool {
	proxies, known := r.ProductToProxy[name]
	if !productOnly && !known {
		return false
	}

	if !r.matchesResources(name, proxy.BasePath, path) {
		return false
	}

	if productOnly {
		return true
	}
	return slices.Contains(proxies, proxy.Name)
}

// matchesResources evaluates the product's patterns in order; the first
// match wins. No patterns means any path.
func (r *Rules) matchesResources(name, basePath, path string) bool {
	patterns := r.ProductToAPIResource[name]
	if len(patterns) == 0 {
		return true
	}
	for _, raw := range patterns {
		if Compile(raw, basePath).Match(path) {
			return true
		}
	}
	return false
}

// pathOnly drops the query and fragment.
func pathOnly(requestPath string) string {
	if i := strings.IndexAny(requestPath, "?#"); i >= 0 {
		return requestPath[:i]
	}
	return requestPath
}
