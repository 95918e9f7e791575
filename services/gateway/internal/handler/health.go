package handler

import (
	"context"
	"strings"

	"github.com/tan-res-space/draft-genie-sub004/pkg/health"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httpclient"
)

// downstreamHealthPath is the liveness endpoint every backend service exposes.
const downstreamHealthPath = "/health"

// DownstreamCheck returns a readiness check that probes a backend service
// through client. An open breaker fails the check without a request.
func DownstreamCheck(client *httpclient.CircuitBreakerClient, service, baseURL string) health.Checker {
	url := strings.TrimRight(baseURL, "/") + downstreamHealthPath
	return func(ctx context.Context) error {
		resp, err := client.Get(ctx, url)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return httpclient.ResponseError(resp, service)
		}
		return resp.Body.Close()
	}
}
