// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the permit workflow as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/workflow"
)

// Server wraps the MCP server with the workflow tools.
type Server struct {
	mcp *server.MCPServer
	svc *workflow.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *workflow.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Permitflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_applications",
		mcp.WithDescription("List permit applications in creation order with their progress."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive filter on the application name")),
	), s.listApplications)

	s.mcp.AddTool(mcp.NewTool("get_application",
		mcp.WithDescription("Read one permit application with all 12 process steps."),
		mcp.WithString("id", mcp.Required(), mcp.Description("24-character hex application id")),
	), s.getApplication)

	s.mcp.AddTool(mcp.NewTool("create_application",
		mcp.WithDescription("Open a new permit application. Every step starts as \"Not Started\"."),
		mcp.WithString("applicationName", mcp.Required(), mcp.Description("Display name of the quarry application")),
	), s.createApplication)

	s.mcp.AddTool(mcp.NewTool("set_step_status",
		mcp.WithDescription("Set the status of one process step. Any transition is allowed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Application id")),
		mcp.WithNumber("stepNumber", mcp.Required(), mcp.Description("Step number, 1 to 12")),
		mcp.WithString("status", mcp.Required(),
			mcp.Enum(string(models.StatusNotStarted), string(models.StatusInProgress), string(models.StatusCompleted)),
			mcp.Description("New step status")),
	), s.setStepStatus)

	s.mcp.AddTool(mcp.NewTool("append_document",
		mcp.WithDescription("Record a file name against one process step. The step status is unchanged."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Application id")),
		mcp.WithNumber("stepNumber", mcp.Required(), mcp.Description("Step number, 1 to 12")),
		mcp.WithString("fileName", mcp.Required(), mcp.Description("Display name of the document")),
	), s.appendDocument)

	s.mcp.AddTool(mcp.NewTool("get_step_template",
		mcp.WithDescription("Returns the canonical 12-step permit workflow."),
	), s.getStepTemplate)

	s.mcp.AddResource(
		mcp.NewResource(StepTemplateURI, "Permit Step Template",
			mcp.WithResourceDescription("The fixed sequence of steps every permit application follows."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStepTemplateResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listApplications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apps, err := s.svc.ListApplications(ctx, workflow.ListFilter{Query: req.GetString("query", "")})
	if err != nil {
		return toolError(err), nil
	}
	type summary struct {
		ID              string `json:"_id"`
		ApplicationName string `json:"applicationName"`
		CompletedSteps  int    `json:"completedSteps"`
		Progress        int    `json:"progress"`
	}
	out := make([]summary, len(apps))
	for i := range apps {
		out[i] = summary{
			ID:              apps[i].ID,
			ApplicationName: apps[i].ApplicationName,
			CompletedSteps:  apps[i].CompletedSteps(),
			Progress:        apps[i].Progress(),
		}
	}
	return jsonResult(out)
}

func (s *Server) getApplication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	app, err := s.svc.GetApplication(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(app)
}

func (s *Server) createApplication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("applicationName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	app, err := s.svc.CreateApplication(ctx, workflow.CreateApplicationInput{ApplicationName: name})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(app)
}

func (s *Server) setStepStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := req.RequireInt("stepNumber")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.svc.UpdateStepStatus(ctx, workflow.UpdateStepStatusInput{
		ApplicationID: id,
		StepNumber:    step,
		Status:        models.StepStatus(status),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("step %d of %s set to %s", step, id, status)), nil
}

func (s *Server) appendDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	step, err := req.RequireInt("stepNumber")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fileName, err := req.RequireString("fileName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.svc.AppendDocument(ctx, workflow.AppendDocumentInput{
		ApplicationID: id,
		StepNumber:    step,
		FileName:      fileName,
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("document %q added to step %d of %s", fileName, step, id)), nil
}

func (s *Server) getStepTemplate(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(models.Template)
}

func (s *Server) readStepTemplateResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StepTemplateURI,
			MIMEType: "text/markdown",
			Text:     StepTemplateMarkdown(),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into an error result the model can read.
func toolError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError("invalid input: " + verr.Fields.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("Application or step not found")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
