package http_client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// ResponseType is the type of the "response" output.
var ResponseType = cty.Object(map[string]cty.Type{
	"status_code": cty.Number,
	"body":        cty.String,
})

// requestArgs are the arguments of an http_request block.
type requestArgs struct {
	URL     string
	Method  string
	Body    string
	Timeout time.Duration
	Headers map[string]string
}

func parseArgs(id string, args registry.Args) (*requestArgs, error) {
	ra := &requestArgs{Method: http.MethodGet, Timeout: DefaultTimeout}
	var err error
	if ra.URL, err = args.String("url", ""); err != nil {
		return nil, err
	}
	if ra.URL == "" {
		return nil, fmt.Errorf("http_request '%s': argument 'url' is required", id)
	}
	if ra.Method, err = args.String("method", ra.Method); err != nil {
		return nil, err
	}
	ra.Method = strings.ToUpper(ra.Method)
	if ra.Body, err = args.String("body", ""); err != nil {
		return nil, err
	}
	if err := args.Decode("headers", &ra.Headers); err != nil {
		return nil, err
	}
	timeout, err := args.String("timeout", "")
	if err != nil {
		return nil, err
	}
	if timeout != "" {
		if ra.Timeout, err = time.ParseDuration(timeout); err != nil {
			return nil, fmt.Errorf("http_request '%s': invalid timeout: %w", id, err)
		}
	}
	return ra, nil
}

func newRequest(client *http.Client) registry.Factory {
	return func(id string, args registry.Args) (unit.Unit, error) {
		ra, err := parseArgs(id, args)
		if err != nil {
			return nil, err
		}
		return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, _ unit.Inputs) (unit.Outputs, error) {
			v, err := do(ctx, client, ra)
			if err != nil {
				return nil, err
			}
			return unit.Single("response", v), nil
		},
			unit.WithOutputs(port.Scalar("response", ResponseType)),
			unit.WithEffects(execctx.NetHTTP),
			unit.WithEstimate(unit.ResourceRequirements{
				CPU:         0.1,
				MemoryBytes: 1 << 20,
				IOOps:       1,
				Duration:    ra.Timeout,
			}),
		), nil
	}
}

func do(ctx context.Context, client *http.Client, ra *requestArgs) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("method", ra.Method, "url", ra.URL)
	logger.Info("Making HTTP request")

	ctx, cancel := context.WithTimeout(ctx, ra.Timeout)
	defer cancel()

	var body io.Reader
	if ra.Body != "" {
		body = strings.NewReader(ra.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ra.Method, ra.URL, body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range ra.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to read response body: %w", err)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"body":        cty.StringVal(string(bodyBytes)),
	}), nil
}
