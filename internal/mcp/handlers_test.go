package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// --- getArgs / stringArg / numberArg ---

func TestGetArgs_NilArguments(t *testing.T) {
	req := mcp.CallToolRequest{}
	args := getArgs(req)
	if args == nil {
		t.Fatal("getArgs returned nil, expected empty map")
	}
	if len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}
}

func TestGetArgs_ValidMap(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"key": "value",
			},
		},
	}
	args := getArgs(req)
	if v, ok := args["key"]; !ok || v != "value" {
		t.Fatalf("expected key=value, got %v", args)
	}
}

func TestGetArgs_WrongType(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: "not a map",
		},
	}
	args := getArgs(req)
	if len(args) != 0 {
		t.Fatalf("expected empty map for wrong type, got %v", args)
	}
}

func TestStringArg_Present(t *testing.T) {
	args := map[string]interface{}{"name": "hello"}
	if got := stringArg(args, "name", "default"); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestStringArg_Missing(t *testing.T) {
	args := map[string]interface{}{}
	if got := stringArg(args, "name", "default"); got != "default" {
		t.Fatalf("expected 'default', got %q", got)
	}
}

func TestNumberArg_Present(t *testing.T) {
	args := map[string]interface{}{"count": float64(42)}
	if got := numberArg(args, "count", 0); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestNumberArg_Missing(t *testing.T) {
	args := map[string]interface{}{}
	if got := numberArg(args, "count", 7); got != 7 {
		t.Fatalf("expected default 7, got %v", got)
	}
}

func TestNumberArg_WrongType(t *testing.T) {
	args := map[string]interface{}{"count": "not a number"}
	if got := numberArg(args, "count", 7); got != 7 {
		t.Fatalf("expected default 7 for wrong type, got %v", got)
	}
}

// --- newTextResult / errResult ---

func TestNewTextResult(t *testing.T) {
	result := newTextResult("hello world")
	if result.IsError {
		t.Fatal("newTextResult should not set IsError")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	if tc.Text != "hello world" {
		t.Fatalf("expected 'hello world', got %q", tc.Text)
	}
}

func TestErrResult(t *testing.T) {
	result := errResult("something failed")
	if !result.IsError {
		t.Fatal("errResult should set IsError=true")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	if tc.Text != "something failed" {
		t.Fatalf("expected 'something failed', got %q", tc.Text)
	}
}

// --- handleExplainRecord ---

func TestHandleExplainRecord_KnownField(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"field": "wake_latency"},
		},
	}
	res, err := handleExplainRecord(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success, got IsError")
	}
	tc := res.Content[0].(mcp.TextContent)
	if tc.Text == "" {
		t.Error("expected non-empty explanation")
	}
}

func TestHandleExplainRecord_UnknownField(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{"field": "not_a_real_field"},
		},
	}
	res, err := handleExplainRecord(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for unknown field")
	}
}

func TestHandleExplainRecord_ListsAllFields(t *testing.T) {
	req := mcp.CallToolRequest{}
	res, err := handleExplainRecord(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success when no field given")
	}
	tc := res.Content[0].(mcp.TextContent)
	var names []string
	if err := json.Unmarshal([]byte(tc.Text), &names); err != nil {
		t.Fatalf("response is not a JSON array: %v", err)
	}
	if len(names) != len(recordFieldExplanations) {
		t.Errorf("expected %d fields, got %d", len(recordFieldExplanations), len(names))
	}
}

// --- handleGetCapabilities ---

func TestHandleGetCapabilities(t *testing.T) {
	req := mcp.CallToolRequest{}
	res, err := handleGetCapabilities(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success, got IsError")
	}
	tc := res.Content[0].(mcp.TextContent)
	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Text), &summary); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if _, ok := summary["capability_level"]; !ok {
		t.Error("expected capability_level in summary")
	}
	if _, ok := summary["recommended_des"]; !ok {
		t.Error("expected recommended_des in summary")
	}
}

func TestRecommendedVariant(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{2, "bpf"},
		{1, "hrt"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := recommendedVariant(tt.level); got != tt.want {
			t.Errorf("recommendedVariant(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

// --- Server creation ---

func TestNewServer(t *testing.T) {
	srv := NewServer("1.0.0-test")
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcpServer == nil {
		t.Fatal("mcpServer is nil")
	}
}
