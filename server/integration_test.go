package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	msconfig "github.com/example/mockgw/config"
)

func makeRequest(method, url string, body interface{}, headers map[string]string) *http.Request {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, _ := http.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func newTestConfig() *msconfig.Config {
	cfg := &msconfig.Config{
		Server: msconfig.ServerConfig{
			Port:      5000,
			APIPrefix: "/v1",
		},
	}
	cfg.Server.ApplyServerDefaults()
	cfg.Server.Console.Enabled = false
	return cfg
}

func TestIntegration_SimpleMock(t *testing.T) {
	cfg := newTestConfig()
	cfg.Handlers = []msconfig.RouteConfig{
		{
			Name:   "Test Route",
			Method: "GET",
			Path:   "/hello",
			Function: &msconfig.FunctionConfig{
				Mock: &msconfig.MockConfig{
					Status: 200,
					Body:   map[string]interface{}{"message": "world"},
				},
			},
		},
	}

	app := StartServer(cfg, "")
	req := makeRequest("GET", "/v1/hello", nil, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	bodyBytes, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message": "world"}`, string(bodyBytes))
}

func TestIntegration_LogicCases(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.APIPrefix = "/api"
	cfg.Handlers = []msconfig.RouteConfig{
		{
			Name:   "Dynamic Pricing",
			Method: "POST",
			Path:   "/price",
			Function: &msconfig.FunctionConfig{
				Cases: []msconfig.CaseConfig{
					{
						When: "request.body.type == 'vip'",
						Then: msconfig.CResponse{
							Status: 200,
							Body:   map[string]interface{}{"price": 50},
						},
					},
				},
				Mock: &msconfig.MockConfig{
					Status: 200,
					Body:   map[string]interface{}{"price": 100},
				},
			},
		},
	}

	app := StartServer(cfg, "")

	reqVIP := makeRequest("POST", "/api/price", map[string]string{"type": "vip"}, nil)
	respVIP, err := app.Test(reqVIP)
	require.NoError(t, err)
	bodyVIP, _ := io.ReadAll(respVIP.Body)
	assert.Equal(t, 200, respVIP.StatusCode)
	assert.JSONEq(t, `{"price": 50}`, string(bodyVIP))

	reqNorm := makeRequest("POST", "/api/price", map[string]string{"type": "normal"}, nil)
	respNorm, err := app.Test(reqNorm)
	require.NoError(t, err)
	bodyNorm, _ := io.ReadAll(respNorm.Body)
	assert.JSONEq(t, `{"price": 100}`, string(bodyNorm))
}

func TestIntegration_StatefulFlow(t *testing.T) {
	cfg := newTestConfig()
	cfg.Handlers = []msconfig.RouteConfig{
		{
			Name:   "Create User",
			Method: "POST",
			Path:   "/users",
			Function: &msconfig.FunctionConfig{
				Stateful: &msconfig.StatefulConfig{Collection: "users", Action: "create", IDField: "id"},
				Mock: &msconfig.MockConfig{
					Status: 200,
					Body:   "{{state.created}}",
				},
				BodySchema: &msconfig.JSONSchema{
					Type: "object",
					Properties: map[string]*msconfig.JSONSchema{
						"id":   {Type: "integer"},
						"name": {Type: "string"},
					},
				},
			},
		},
		{
			Name:   "Get User",
			Method: "GET",
			Path:   "/users/{id}",
			Function: &msconfig.FunctionConfig{
				Stateful: &msconfig.StatefulConfig{Collection: "users", Action: "get", IDField: "id"},
				Mock: &msconfig.MockConfig{
					Status: 200,
					Body:   "{{state.item}}",
				},
			},
		},
	}

	app := StartServer(cfg, "")

	newUser := map[string]interface{}{"id": 123, "name": "CTO"}
	reqCreate := makeRequest("POST", "/v1/users", newUser, nil)
	respCreate, err := app.Test(reqCreate)
	require.NoError(t, err)
	assert.Equal(t, 200, respCreate.StatusCode)

	reqGet := makeRequest("GET", "/v1/users/123", nil, nil)
	respGet, err := app.Test(reqGet)
	require.NoError(t, err)

	bodyGet, _ := io.ReadAll(respGet.Body)
	assert.Equal(t, 200, respGet.StatusCode)
	assert.Contains(t, string(bodyGet), "CTO")
}

func TestIntegration_Auth(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.APIPrefix = "/secure"
	cfg.Server.Auth = &msconfig.AuthConfig{
		Enabled: true,
		Type:    "apiKey",
		In:      "header",
		Name:    "X-Secret",
		Keys:    []string{"super-secret-key"},
	}
	cfg.Handlers = []msconfig.RouteConfig{
		{
			Name:   "Secret Data",
			Method: "GET",
			Path:   "/data",
			Function: &msconfig.FunctionConfig{
				Mock: &msconfig.MockConfig{Status: 200, Body: "Success"},
			},
		},
	}

	app := StartServer(cfg, "")

	reqFail := makeRequest("GET", "/secure/data", nil, nil)
	respFail, err := app.Test(reqFail)
	require.NoError(t, err)
	assert.Equal(t, 401, respFail.StatusCode)

	reqSuccess := makeRequest("GET", "/secure/data", nil, map[string]string{"X-Secret": "super-secret-key"})
	respSuccess, err := app.Test(reqSuccess)
	require.NoError(t, err)
	assert.Equal(t, 200, respSuccess.StatusCode)
}

func TestIntegration_Fetch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := newTestConfig()
	cfg.Server.APIPrefix = "/proxy"
	cfg.Handlers = []msconfig.RouteConfig{
		{
			Name:   "Upstream Proxy",
			Method: "GET",
			Path:   "/upstream",
			Function: &msconfig.FunctionConfig{
				Fetch: &msconfig.FetchConfig{URL: upstream.URL, PassStatus: true},
			},
		},
	}

	app := StartServer(cfg, "")

	req := makeRequest("GET", "/proxy/upstream", nil, nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}
