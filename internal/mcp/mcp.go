// Package mcp implements the Model Context Protocol surface for the meal
// tool layer.
//
// The MCP server exposes the same five operations as the invocation
// dispatcher, so MCP-compatible agents can log and manage meals without the
// Bedrock-style envelope. The transport's auth middleware places the
// authenticated principal in the request context; handlers refuse to run
// without one.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kcalhq/kcal/internal/ctxutil"
	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/resolve"
	"github.com/kcalhq/kcal/internal/service/meals"
)

// Server wraps the MCP server with the meal service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *meals.Service
	resolver  *resolve.Resolver
	logger    *slog.Logger
	now       func() time.Time
}

// New creates and configures a new MCP server with all tools registered.
func New(svc *meals.Service, resolver *resolve.Resolver, logger *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kcal",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// meal_log — record a meal.
	s.mcpServer.AddTool(
		mcplib.NewTool("meal_log",
			mcplib.WithDescription("Log a meal with its name, calories, and optional macros"),
			mcplib.WithString("name", mcplib.Description("Meal name"), mcplib.Required()),
			mcplib.WithNumber("calories", mcplib.Description("Calories (kcal)"), mcplib.Required()),
			mcplib.WithNumber("protein", mcplib.Description("Protein in grams")),
			mcplib.WithNumber("carbs", mcplib.Description("Carbohydrates in grams")),
			mcplib.WithNumber("fat", mcplib.Description("Fat in grams")),
		),
		s.handleLog,
	)

	// meal_list — today's meals.
	s.mcpServer.AddTool(
		mcplib.NewTool("meal_list",
			mcplib.WithDescription("List the meals logged today"),
		),
		s.handleList,
	)

	// meal_find — fuzzy lookup without side effects.
	s.mcpServer.AddTool(
		mcplib.NewTool("meal_find",
			mcplib.WithDescription("Find logged meals by approximate name"),
			mcplib.WithString("name", mcplib.Description("Approximate meal name"), mcplib.Required()),
			mcplib.WithNumber("calories", mcplib.Description("Expected calories, used to disambiguate")),
		),
		s.handleFind,
	)

	// meal_modify — update by ID or by approximate name.
	s.mcpServer.AddTool(
		mcplib.NewTool("meal_modify",
			mcplib.WithDescription("Modify a logged meal by ID, or by approximate name when the ID is unknown"),
			mcplib.WithNumber("meal_id", mcplib.Description("Meal ID, if known")),
			mcplib.WithString("name", mcplib.Description("Approximate name to match when no ID is given")),
			mcplib.WithString("new_name", mcplib.Description("Replacement name")),
			mcplib.WithNumber("calories", mcplib.Description("Replacement calories")),
			mcplib.WithNumber("protein", mcplib.Description("Replacement protein in grams")),
			mcplib.WithNumber("carbs", mcplib.Description("Replacement carbohydrates in grams")),
			mcplib.WithNumber("fat", mcplib.Description("Replacement fat in grams")),
		),
		s.handleModify,
	)

	// meal_delete — delete by ID or by approximate name.
	s.mcpServer.AddTool(
		mcplib.NewTool("meal_delete",
			mcplib.WithDescription("Delete a logged meal by ID, or by approximate name when the ID is unknown"),
			mcplib.WithNumber("meal_id", mcplib.Description("Meal ID, if known")),
			mcplib.WithString("name", mcplib.Description("Approximate name to match when no ID is given")),
			mcplib.WithNumber("calories", mcplib.Description("Expected calories, used to disambiguate")),
		),
		s.handleDelete,
	)
}

func (s *Server) handleLog(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	principal := ctxutil.PrincipalFromContext(ctx)
	if principal == "" {
		return errorResult("not authenticated"), nil
	}

	rec := model.MealRecord{Name: request.GetString("name", "")}
	if v := request.GetFloat("calories", -1); v >= 0 {
		rec.Calories = &v
	}
	if v := request.GetFloat("protein", -1); v >= 0 {
		rec.Protein = &v
	}
	if v := request.GetFloat("carbs", -1); v >= 0 {
		rec.Carbs = &v
	}
	if v := request.GetFloat("fat", -1); v >= 0 {
		rec.Fat = &v
	}

	msg, err := s.svc.Add(ctx, principal, rec)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(msg), nil
}

func (s *Server) handleList(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	principal := ctxutil.PrincipalFromContext(ctx)
	if principal == "" {
		return errorResult("not authenticated"), nil
	}

	recs, err := s.svc.List(ctx, principal, model.DayFilter(s.now()))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(meals.FormatDaily(recs)), nil
}

func (s *Server) handleFind(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.resolveTool(ctx, request, "")
}

func (s *Server) handleModify(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	principal := ctxutil.PrincipalFromContext(ctx)
	if principal == "" {
		return errorResult("not authenticated"), nil
	}

	if id := int64(request.GetInt("meal_id", 0)); id > 0 {
		msg, err := s.svc.Modify(ctx, principal, id, fieldsFromRequest(request, true))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(msg), nil
	}
	return s.resolveTool(ctx, request, "modify")
}

func (s *Server) handleDelete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	principal := ctxutil.PrincipalFromContext(ctx)
	if principal == "" {
		return errorResult("not authenticated"), nil
	}

	if id := int64(request.GetInt("meal_id", 0)); id > 0 {
		msg, err := s.svc.Remove(ctx, principal, id)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(msg), nil
	}
	return s.resolveTool(ctx, request, "delete")
}

// resolveTool routes the name-based variants of find, modify, and delete
// through the fuzzy resolver.
func (s *Server) resolveTool(ctx context.Context, request mcplib.CallToolRequest, action string) (*mcplib.CallToolResult, error) {
	principal := ctxutil.PrincipalFromContext(ctx)
	if principal == "" {
		return errorResult("not authenticated"), nil
	}

	q := resolve.Query{
		Name:   request.GetString("name", ""),
		Action: action,
	}
	if action != "modify" {
		if v := request.GetFloat("calories", -1); v >= 0 {
			q.TargetEnergy = &v
		}
	} else {
		q.UpdateFields = fieldsFromRequest(request, false)
	}

	res, err := s.resolver.Resolve(ctx, principal, q)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(res.Message)
	if !res.AutoActed {
		for _, c := range res.Candidates {
			fmt.Fprintf(&b, "\nID: %d - %s (score %.2f)", c.ID, c.Name, c.Score)
		}
	}
	return textResult(b.String()), nil
}

// fieldsFromRequest assembles the updatable field set. byID treats "name" as
// the replacement name; name-matched updates take renames from "new_name".
func fieldsFromRequest(request mcplib.CallToolRequest, byID bool) model.MealFields {
	var f model.MealFields
	if byID {
		if name := request.GetString("name", ""); name != "" {
			f.Name = &name
		}
	}
	if newName := request.GetString("new_name", ""); newName != "" {
		f.Name = &newName
	}
	if v := request.GetFloat("calories", -1); v >= 0 {
		f.Calories = &v
	}
	if v := request.GetFloat("protein", -1); v >= 0 {
		f.Protein = &v
	}
	if v := request.GetFloat("carbs", -1); v >= 0 {
		f.Carbs = &v
	}
	if v := request.GetFloat("fat", -1); v >= 0 {
		f.Fat = &v
	}
	return f
}

func textResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
