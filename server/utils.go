package server

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	server_utils "github.com/example/mockgw/server/utils"
)

// validateDelay checks if the provided delay (in milliseconds) is valid.
// Ensures the delay does not exceed 10 seconds (10000 ms).
// Returns the valid delay or an error if the limit is exceeded.
func validateDelay(delay int) (int, error) {
	if delay > 10000 {
		return 0, fmt.Errorf("delay cannot exceed 10000 ms (10 seconds), got %d", delay)
	}
	return delay, nil
}

// mergeHeaders merges three sets of HTTP headers into one.
// Priority order: defaults < routeHeaders < customHeaders
// meaning later headers overwrite earlier ones if the same key exists.
func mergeHeaders(defaults, routeHeaders, customHeaders map[string]string) map[string]string {
	headers := make(map[string]string)
	for k, v := range defaults {
		headers[k] = v
	}
	for k, v := range routeHeaders {
		headers[k] = v
	}
	for k, v := range customHeaders {
		headers[k] = v
	}
	return headers
}

// parseAndFilterMockData unmarshals a mock file's raw JSON array, expands
// {{faker.*}}/{{request.*}} placeholders through the same template
// processor the inline-body mock path uses, then applies the legacy
// `_page`/`_limit`/`_sort`/`_order`-style query filtering via
// server_utils.FilteredMockData.
func parseAndFilterMockData(data []byte, params map[string]string) ([]map[string]interface{}, error) {
	var arr []map[string]interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	ctx := server_utils.EContext{Query: params, Path: params}
	processed := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		out, err := server_utils.ProcessTemplateJSON(item, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to process template JSON: %w", err)
		}
		m, ok := out.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("mock file item did not round-trip as an object")
		}
		processed = append(processed, m)
	}

	filtered, err := server_utils.FilteredMockData(processed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to filter mock data: %w", err)
	}
	return filtered, nil
}

// buildTargetURL builds the final upstream URL for fetch proxying:
// substitutes {name} path parameters, then layers the client's own query
// string under the fetch route's configured query_params (which win on
// conflict).
func buildTargetURL(base *url.URL, pathParams, clientQuery, fetchQueryParams map[string]string) string {
	target := *base
	path := target.Path
	for k, v := range pathParams {
		path = strings.ReplaceAll(path, fmt.Sprintf("{%s}", k), v)
	}
	target.Path = path

	q := target.Query()
	for k, v := range clientQuery {
		q.Set(k, v)
	}
	for k, v := range fetchQueryParams {
		q.Set(k, v)
	}
	target.RawQuery = q.Encode()
	return target.String()
}
