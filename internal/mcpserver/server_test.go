package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(testutil.TestService(t))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_applications":
		result, err = srv.listApplications(ctx, req)
	case "get_application":
		result, err = srv.getApplication(ctx, req)
	case "create_application":
		result, err = srv.createApplication(ctx, req)
	case "set_step_status":
		result, err = srv.setStepStatus(ctx, req)
	case "append_document":
		result, err = srv.appendDocument(ctx, req)
	case "get_step_template":
		result, err = srv.getStepTemplate(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createApp(t *testing.T, srv *Server, name string) models.Application {
	t.Helper()
	r := callTool(t, srv, "create_application", map[string]interface{}{"applicationName": name})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	var app models.Application
	if err := json.Unmarshal([]byte(resultText(r)), &app); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return app
}

func TestCreateAndGetApplication(t *testing.T) {
	srv := testServer(t)
	app := createApp(t, srv, "Hill Quarry")
	if len(app.ProcessSteps) != 12 {
		t.Fatalf("steps = %d", len(app.ProcessSteps))
	}

	r := callTool(t, srv, "get_application", map[string]interface{}{"id": app.ID})
	if r.IsError {
		t.Fatalf("get failed: %s", resultText(r))
	}
	var got models.Application
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	if got.ID != app.ID || got.ApplicationName != "Hill Quarry" {
		t.Errorf("got = %+v", got)
	}
}

func TestCreateApplicationBlankName(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "create_application", map[string]interface{}{"applicationName": "   "})
	if !r.IsError {
		t.Error("expected error for blank name")
	}
}

func TestSetStepStatusAndAppendDocument(t *testing.T) {
	srv := testServer(t)
	app := createApp(t, srv, "Tools")

	// JSON numbers arrive as float64.
	r := callTool(t, srv, "set_step_status", map[string]interface{}{
		"id": app.ID, "stepNumber": float64(2), "status": "Completed",
	})
	if r.IsError {
		t.Fatalf("set_step_status: %s", resultText(r))
	}
	r = callTool(t, srv, "append_document", map[string]interface{}{
		"id": app.ID, "stepNumber": float64(2), "fileName": "receipt.pdf",
	})
	if r.IsError {
		t.Fatalf("append_document: %s", resultText(r))
	}

	r = callTool(t, srv, "get_application", map[string]interface{}{"id": app.ID})
	var got models.Application
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	step := got.Step(2)
	if step.Status != models.StatusCompleted {
		t.Errorf("status = %q", step.Status)
	}
	if len(step.Documents) != 1 || step.Documents[0].FileName != "receipt.pdf" {
		t.Errorf("documents = %v", step.Documents)
	}
}

func TestSetStepStatusErrors(t *testing.T) {
	srv := testServer(t)
	app := createApp(t, srv, "Errors")

	r := callTool(t, srv, "set_step_status", map[string]interface{}{
		"id": app.ID, "stepNumber": float64(13), "status": "Completed",
	})
	if !r.IsError || resultText(r) != "Application or step not found" {
		t.Errorf("out of range = %q", resultText(r))
	}

	r = callTool(t, srv, "set_step_status", map[string]interface{}{
		"id": app.ID, "stepNumber": float64(1), "status": "Done",
	})
	if !r.IsError || !strings.HasPrefix(resultText(r), "invalid input") {
		t.Errorf("bad status = %q", resultText(r))
	}

	r = callTool(t, srv, "set_step_status", map[string]interface{}{"id": app.ID})
	if !r.IsError {
		t.Error("expected error for missing arguments")
	}
}

func TestListApplicationsFilter(t *testing.T) {
	srv := testServer(t)
	createApp(t, srv, "Granite One")
	createApp(t, srv, "Basalt Two")

	r := callTool(t, srv, "list_applications", map[string]interface{}{"query": "granite"})
	var out []struct {
		ApplicationName string `json:"applicationName"`
		Progress        int    `json:"progress"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ApplicationName != "Granite One" {
		t.Errorf("filtered = %+v", out)
	}

	r = callTool(t, srv, "list_applications", map[string]interface{}{})
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if len(out) != 2 {
		t.Errorf("all = %d, want 2", len(out))
	}
}

func TestStepTemplate(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_step_template", nil)
	var tpl []models.StepTemplate
	if err := json.Unmarshal([]byte(resultText(r)), &tpl); err != nil {
		t.Fatal(err)
	}
	if len(tpl) != 12 {
		t.Errorf("template len = %d", len(tpl))
	}

	md := StepTemplateMarkdown()
	if !strings.Contains(md, "| 12 | Permit Issued (upload) |") {
		t.Errorf("markdown missing last step:\n%s", md)
	}

	contents, err := srv.readStepTemplateResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != StepTemplateURI {
		t.Errorf("resource contents = %#v", contents[0])
	}
}
