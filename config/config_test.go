// Tests for config loading, defaults and route/filter validation.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempMockFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp mock file: %v", err)
	}
	return path
}

func TestValidateMock_Success(t *testing.T) {
	tmpDir := t.TempDir()
	mockFile := createTempMockFile(t, tmpDir, "todos.json", `{"todos": []}`)

	mockCfg := &MockConfig{
		File:    mockFile,
		Status:  200,
		DelayMs: 10,
	}

	err := validateMock(mockCfg, "/todos", "")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateMock_FileNotFound(t *testing.T) {
	mockCfg := &MockConfig{
		File:    "not_found.json",
		Status:  200,
		DelayMs: 0,
	}

	err := validateMock(mockCfg, "/todos", "")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestValidateMock_InvalidExtension(t *testing.T) {
	tmpDir := t.TempDir()
	mockFile := createTempMockFile(t, tmpDir, "todos.txt", `dummy`)

	mockCfg := &MockConfig{
		File: mockFile,
	}

	err := validateMock(mockCfg, "/todos", "")
	if err == nil {
		t.Error("expected error for invalid extension, got nil")
	}
}

func TestValidateAndApplyDefaults(t *testing.T) {
	cfg := &Config{}
	err := validateAndApplyDefaults(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port=5000, got %d", cfg.Server.Port)
	}

	if cfg.Server.DefaultHeaders["Content-Type"] != "application/json" {
		t.Errorf("expected default header 'application/json', got %v", cfg.Server.DefaultHeaders)
	}
}

func TestValidateRoute_RequiresFunctionOrFS(t *testing.T) {
	route := &RouteConfig{Method: "GET", Path: "/widgets"}
	if err := validateRoute(route, ""); err == nil {
		t.Error("expected error when neither function nor fs is set, got nil")
	}
}

func TestValidateRoute_FSVariantOK(t *testing.T) {
	route := &RouteConfig{
		Method: "GET",
		Path:   "/widgets/{id}",
		FS:     &FSHandlerConfig{RelPath: "widgets"},
	}
	if err := validateRoute(route, ""); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateRoute_InvalidMethod(t *testing.T) {
	route := &RouteConfig{
		Method:   "TRACE",
		Path:     "/widgets",
		Function: &FunctionConfig{Mock: &MockConfig{Status: 200}},
	}
	if err := validateRoute(route, ""); err == nil {
		t.Error("expected error for unsupported method, got nil")
	}
}

func TestValidatePaginationSpec_BodySourceRequiresRoot(t *testing.T) {
	err := validatePaginationSpec(PaginationSpecConfig{Source: "body"}, "pagination[GET]")
	if err == nil {
		t.Error("expected error when body source has no root, got nil")
	}
}

func TestValidatePaginationSpec_QuerySourceOK(t *testing.T) {
	err := validatePaginationSpec(PaginationSpecConfig{Source: "query"}, "pagination[GET]")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateFilterRules_RejectsUnknownComparison(t *testing.T) {
	rules := []FilterRuleConfig{{Key: "status", ValueType: "string", Comparison: "fuzzy"}}
	if err := validateFilterRules(rules, "filters[GET]"); err == nil {
		t.Error("expected error for unknown comparison, got nil")
	}
}

func TestValidateFilterRules_RegexRequiresStringType(t *testing.T) {
	rules := []FilterRuleConfig{{Key: "createdAt", ValueType: "date", Comparison: "regex"}}
	if err := validateFilterRules(rules, "filters[GET]"); err == nil {
		t.Error("expected error for regex comparison on a non-string value_type, got nil")
	}
}

func TestValidateAndApplyDefaults_DuplicateRouteWarnsButDoesNotFail(t *testing.T) {
	cfg := &Config{
		Handlers: []RouteConfig{
			{Method: "GET", Path: "/widgets", FS: &FSHandlerConfig{RelPath: "widgets"}},
			{Method: "GET", Path: "/widgets", FS: &FSHandlerConfig{RelPath: "widgets"}},
		},
	}
	if err := validateAndApplyDefaults(cfg, ""); err != nil {
		t.Fatalf("unexpected error on duplicate (method, path): %v", err)
	}
}
