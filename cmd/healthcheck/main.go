// Command healthcheck queries a running service's /health endpoint, prints the
// report and exits with a monitoring-friendly status: 0 healthy, 1 warning or
// degraded, 2 any other status, 3 when the check itself failed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"

	"adgenerator/internal/health"
)

const exitCheckFailed = 3

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	url := flag.String("url", "http://localhost:"+port+"/health", "health endpoint to query")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	os.Exit(run(*url, *timeout))
}

func run(url string, timeout time.Duration) int {
	var report health.Report
	resp, err := resty.New().SetTimeout(timeout).R().SetResult(&report).SetError(&report).ForceContentType("application/json").Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return exitCheckFailed
	}
	if report.Status == "" {
		fmt.Fprintf(os.Stderr, "health check failed: unexpected response (HTTP %d)\n", resp.StatusCode())
		return exitCheckFailed
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return exitCheckFailed
	}
	fmt.Println(string(out))
	return health.ExitCode(report.Status)
}
