package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/svcpipe"
)

func newRequestCmd(a *app) *cobra.Command {
	var (
		data     string
		query    []string
		headers  []string
		retries  int
		timeout  time.Duration
		useCache bool
		noAuth   bool
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "request [METHOD] <endpoint>",
		Short: "Execute one request through the pipeline",
		Example: "  svcpipe request /users --query page=2\n" +
			"  svcpipe request POST /users --data '{\"name\":\"ada\"}'",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &svcpipe.Request{
				Endpoint: args[len(args)-1],
				Method:   svcpipe.MethodGet,
				Timeout:  timeout,
				SkipAuth: noAuth,
				UseCache: useCache,
			}
			if len(args) == 2 {
				req.Method = strings.ToUpper(args[0])
			}
			if cmd.Flags().Changed("retries") {
				req.Retries = svcpipe.Int(retries)
			}
			if data != "" {
				req.Body = requestBody(data)
			}

			q, err := parsePairs(query, "=")
			if err != nil {
				return fmt.Errorf("parse --query: %w", err)
			}
			for k, v := range q {
				if req.Query == nil {
					req.Query = map[string]any{}
				}
				req.Query[k] = v
			}
			h, err := parsePairs(headers, ":")
			if err != nil {
				return fmt.Errorf("parse --header: %w", err)
			}
			for k, v := range h {
				req.SetHeader(k, v)
			}

			svc, err := a.newService()
			if err != nil {
				return err
			}

			resp, err := svc.Request(cmd.Context(), req)
			if err != nil {
				var se *svcpipe.ServiceError
				if debug && errors.As(err, &se) {
					fmt.Fprintln(cmd.ErrOrStderr(), se.DebugInfo())
				}
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&data, "data", "d", "", "Request body; JSON is sent as application/json")
	f.StringArrayVarP(&query, "query", "q", nil, "Query parameter key=value (repeatable)")
	f.StringArrayVarP(&headers, "header", "H", nil, "Header 'Name: value' (repeatable)")
	f.IntVar(&retries, "retries", svcpipe.DefaultRetries, "Retry budget for this call")
	f.DurationVar(&timeout, "timeout", 0, "Per-attempt timeout (default from config)")
	f.BoolVar(&useCache, "cache", false, "Serve GET requests from the response cache")
	f.BoolVar(&noAuth, "no-auth", false, "Do not attach stored credentials")
	f.BoolVar(&debug, "debug-error", false, "Print full error details on failure")
	return cmd
}

// requestBody sends valid JSON as-is and anything else as raw bytes.
func requestBody(data string) any {
	if json.Valid([]byte(data)) {
		return json.RawMessage(data)
	}
	return []byte(data)
}

func parsePairs(pairs []string, sep string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, sep)
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key%svalue, got %q", sep, p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
