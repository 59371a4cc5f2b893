// Command healthcheck probes a local notevault server for container health
// checks. It exits 0 only when the health endpoint reports "ok".
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const fallbackAddr = "127.0.0.1:8080"

func main() {
	addr := flag.String("addr", os.Getenv("NOTEVAULT_LISTEN_ADDR"), "server listen address")
	timeout := flag.Duration("timeout", 2*time.Second, "probe timeout")
	flag.Parse()

	os.Exit(probe(loopback(*addr), *timeout))
}

func probe(addr string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/v1/health", nil)
	if err != nil {
		return 1
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil || body.Status != "ok" {
		return 1
	}
	return 0
}

// loopback rewrites a bind-all listen address to loopback, since the probe
// runs inside the same container as the server.
func loopback(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if err != nil || port == "" {
		return fallbackAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
