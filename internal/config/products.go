package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/astro-web3/oauthgate/internal/domain/product"
	"gopkg.in/yaml.v3"
)

// LoadRules reads product_to_proxy and product_to_api_resource from a YAML
// (or JSON) file. Product names keep their case. An empty path yields empty
// rules, which deny every authenticated request.
func LoadRules(path string) (*product.Rules, error) {
	if path == "" {
		return emptyRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read products file: %w", err)
	}

	return ParseRules(data)
}

func ParseRules(data []byte) (*product.Rules, error) {
	rules := emptyRules()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse products file: %w", err)
	}

	if rules.ProductToProxy == nil {
		rules.ProductToProxy = map[string][]string{}
	}
	if rules.ProductToAPIResource == nil {
		rules.ProductToAPIResource = map[string][]string{}
	}
	return rules, nil
}

func emptyRules() *product.Rules {
	return &product.Rules{
		ProductToProxy:       map[string][]string{},
		ProductToAPIResource: map[string][]string{},
	}
}
