package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	grpctransport "github.com/astro-web3/oauthgate/internal/transport/grpc"
)

func main() {
	server := flag.String("server", "http://localhost:8123", "oauthgate base URL")
	bearer := flag.String("token", "", "bearer token to send")
	apiKey := flag.String("api-key", "", "API key to send instead of a token")
	proxy := flag.String("proxy", "", "proxy name")
	basePath := flag.String("base-path", "", "proxy base path")
	uri := flag.String("uri", "/", "original request URI")
	flag.Parse()

	if *bearer == "" && *apiKey == "" {
		log.Fatalf("Usage: test-check -token <jwt> | -api-key <key> [-proxy name -base-path /v1 -uri /v1/orders]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(*server, "/")+"/oauth/check/", nil)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("X-Forwarded-Method", http.MethodGet)
	req.Header.Set("X-Forwarded-Uri", *uri)
	req.Header.Set("X-Proxy-Name", *proxy)
	req.Header.Set("X-Proxy-Base-Path", *basePath)
	if *bearer != "" {
		req.Header.Set("Authorization", "Bearer "+*bearer)
	} else {
		req.Header.Set("x-api-key", *apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("❌ Authorization DENIED\n")
		fmt.Printf("Status: %d\n", resp.StatusCode)
		fmt.Printf("Body: %s\n", string(body))
		return
	}

	fmt.Println("✅ Authorization ALLOWED")
	if strip := resp.Header.Get("X-Oauthgate-Strip-Header"); strip != "" {
		fmt.Printf("   Strip header: %s\n", strip)
	}

	if encoded := resp.Header.Get("x-authorization-claims"); encoded != "" {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			log.Fatalf("Failed to decode claims header: %v", err)
		}
		var claims map[string]any
		if err := json.Unmarshal(raw, &claims); err != nil {
			log.Fatalf("Failed to parse claims: %v", err)
		}
		fmt.Printf("\n📋 Forwarded claims:\n")
		for k, v := range claims {
			fmt.Printf("   %s: %v\n", k, v)
		}
	}

	admin := grpctransport.NewAdminClient(http.DefaultClient, *server)
	size, err := admin.APIKeyCacheSize(ctx)
	if err != nil {
		fmt.Printf("\n⚠️  Admin service unavailable: %v\n", err)
		return
	}
	fmt.Printf("\n🗄️  API key cache entries: %d\n", size)
}
