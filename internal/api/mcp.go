package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/autocrew/autocrew/internal/provision"
	"github.com/autocrew/autocrew/internal/storage"
)

// MCPDeps holds dependencies for the MCP admin server.
type MCPDeps struct {
	Store       Store
	Provisioner CrewProvisioner
}

// NewMCPServer creates an MCP server exposing crew administration tools
// and an account overview resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"autocrew",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("autocrew — crew provisioning and knowledge-base administration."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_crews",
			mcp.WithDescription("List all crews belonging to a client, with their status and activation state."),
			mcp.WithString("client_code", mcp.Description("Client code, e.g. ACME-001"), mcp.Required()),
		),
		mcpListCrews(deps),
	)

	s.AddTool(
		mcp.NewTool("provision_crew",
			mcp.WithDescription("Provision a new crew for a client. Customer-support crews get dedicated vector and histories tables."),
			mcp.WithString("client_code", mcp.Description("Client code the crew belongs to"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Human-readable crew name"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Crew type: customer_support or lead_generation"), mcp.Required()),
			mcp.WithString("webhook_url", mcp.Description("Optional webhook URL for crew events")),
		),
		mcpProvisionCrew(deps),
	)

	s.AddTool(
		mcp.NewTool("deprovision_crew",
			mcp.WithDescription("Delete a crew and drop its backing tables."),
			mcp.WithString("crew_id", mcp.Description("Crew ID to deprovision"), mcp.Required()),
		),
		mcpDeprovisionCrew(deps),
	)

	s.AddTool(
		mcp.NewTool("document_status",
			mcp.WithDescription("Report the processing status of a knowledge-base document."),
			mcp.WithString("doc_id", mcp.Description("Document ID"), mcp.Required()),
		),
		mcpDocumentStatus(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"autocrew://overview",
			"Account Overview",
			mcp.WithResourceDescription("All clients with their crew counts, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceOverview(deps),
	)

	return s
}

func mcpListCrews(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientCode, err := req.RequireString("client_code")
		if err != nil {
			return mcpError("client_code is required"), nil
		}

		crews, err := deps.Store.ListCrewsByClient(ctx, clientCode)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list crews: %v", err)), nil
		}

		if len(crews) == 0 {
			return mcpText("[]"), nil
		}

		out := make([]crewResponse, len(crews))
		for i, c := range crews {
			out[i] = toCrewResponse(c)
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal crews: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpProvisionCrew(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		clientCode, err := req.RequireString("client_code")
		if err != nil {
			return mcpError("client_code is required"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		crewType, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		webhookURL := req.GetString("webhook_url", "")

		crew, tablesCreated, err := deps.Provisioner.ProvisionCrew(ctx, provision.Input{
			ClientCode: clientCode,
			Name:       name,
			Type:       crewType,
			WebhookURL: webhookURL,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("provisioning failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Provisioned crew %s (%s) with %d backing tables", crew.ID, crew.CrewCode, tablesCreated)), nil
	}
}

func mcpDeprovisionCrew(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		crewID, err := req.RequireString("crew_id")
		if err != nil {
			return mcpError("crew_id is required"), nil
		}

		if err := deps.Provisioner.DeprovisionCrew(ctx, crewID); err != nil {
			return mcpError(fmt.Sprintf("deprovisioning failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Deprovisioned crew %s", crewID)), nil
	}
}

func mcpDocumentStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("doc_id")
		if err != nil {
			return mcpError("doc_id is required"), nil
		}

		doc, err := deps.Store.GetDocument(ctx, docID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get document: %v", err)), nil
		}

		b, err := json.Marshal(toDocumentResponse(doc))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal document: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceOverview(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		clients, err := deps.Store.ListClients(ctx, 200)
		if err != nil {
			return nil, fmt.Errorf("failed to list clients: %w", err)
		}

		type clientOverview struct {
			ClientCode  string `json:"client_code"`
			CompanyName string `json:"company_name"`
			Plan        string `json:"plan"`
			Status      string `json:"status"`
			CrewCount   int    `json:"crew_count"`
			ActiveCrews int    `json:"active_crews"`
		}

		overview := make([]clientOverview, len(clients))
		for i, c := range clients {
			crews, err := deps.Store.ListCrewsByClient(ctx, c.ClientCode)
			if err != nil {
				return nil, fmt.Errorf("failed to list crews for %s: %w", c.ClientCode, err)
			}
			active := 0
			for _, crew := range crews {
				if crew.Status == storage.CrewStatusActive {
					active++
				}
			}
			overview[i] = clientOverview{
				ClientCode:  c.ClientCode,
				CompanyName: c.CompanyName,
				Plan:        c.Plan,
				Status:      c.Status,
				CrewCount:   len(crews),
				ActiveCrews: active,
			}
		}

		b, err := json.Marshal(overview)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal overview: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
