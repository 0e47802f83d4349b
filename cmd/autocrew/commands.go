package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/autocrew/autocrew/internal/config"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show AutoCrew server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
			return nil
		}
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}

		printStatus("Webhook", "%s", cfg.Webhook.URL)
		printStatus("Sweep max age", "%s", cfg.Sweeper.MaxAge)
		return nil
	},
}

// --- clients ---

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage client accounts",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/clients")
		if err != nil {
			return err
		}

		var clients []map[string]any
		if err := decodeJSON(resp, &clients); err != nil {
			return err
		}

		if len(clients) == 0 {
			printWarning("no clients")
			return nil
		}
		for _, c := range clients {
			fmt.Printf("%-12v %-30v %-10v %v\n", c["client_code"], c["company_name"], c["plan"], c["status"])
		}
		return nil
	},
}

var clientsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a client account",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		name, _ := cmd.Flags().GetString("name")
		plan, _ := cmd.Flags().GetString("plan")

		if code == "" || name == "" {
			return fmt.Errorf("--code and --name are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/clients", map[string]string{
			"client_code":  code,
			"company_name": name,
			"plan":         plan,
		})
		if err != nil {
			return err
		}

		var created map[string]any
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created client %v", created["client_code"])
		return nil
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete <client-code>",
	Short: "Delete a client and tear down all its crews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/clients/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			CrewsDeleted         int   `json:"crewsDeleted"`
			FailedCrewDeletions  int   `json:"failedCrewDeletions"`
			ConversationsDeleted int64 `json:"conversationsDeleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted client %s (%d crews, %d conversations)", args[0], result.CrewsDeleted, result.ConversationsDeleted)
		if result.FailedCrewDeletions > 0 {
			printWarning("%d crew deletions failed; re-run to retry", result.FailedCrewDeletions)
		}
		return nil
	},
}

// --- crews ---

var crewsCmd = &cobra.Command{
	Use:   "crews",
	Short: "Manage crews",
}

var crewsListCmd = &cobra.Command{
	Use:   "list <client-code>",
	Short: "List crews for a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/crews?client=" + url.QueryEscape(args[0]))
		if err != nil {
			return err
		}

		var crews []struct {
			ID       string `json:"id"`
			CrewCode string `json:"crew_code"`
			Name     string `json:"name"`
			Type     string `json:"type"`
			Status   string `json:"status"`
			Config   struct {
				ActivationState struct {
					ActivationReady bool `json:"activation_ready"`
				} `json:"activation_state"`
			} `json:"config"`
		}
		if err := decodeJSON(resp, &crews); err != nil {
			return err
		}

		if len(crews) == 0 {
			printWarning("no crews for %s", args[0])
			return nil
		}
		for _, c := range crews {
			ready := " "
			if c.Config.ActivationState.ActivationReady {
				ready = "ready"
			}
			fmt.Printf("%-38s %-24s %-18s %-10s %s\n", c.ID, c.CrewCode, c.Type, c.Status, ready)
		}
		return nil
	},
}

var crewsProvisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a new crew",
	Long: `Provision a new crew for a client.

Customer-support crews get dedicated vector and histories tables;
lead-generation crews are record-only.

Examples:
  autocrew crews provision --client ACME-001 --name "Support" --type customer_support
  autocrew crews provision --client ACME-001 --name "Outreach" --type lead_generation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientCode, _ := cmd.Flags().GetString("client")
		name, _ := cmd.Flags().GetString("name")
		crewType, _ := cmd.Flags().GetString("type")
		webhookURL, _ := cmd.Flags().GetString("webhook-url")

		if clientCode == "" || name == "" || crewType == "" {
			return fmt.Errorf("--client, --name, and --type are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/crews", map[string]string{
			"client_code": clientCode,
			"name":        name,
			"type":        crewType,
			"webhook_url": webhookURL,
		})
		if err != nil {
			return err
		}

		var result struct {
			Crew          json.RawMessage `json:"crew"`
			TablesCreated int             `json:"tables_created"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		var crew struct {
			ID       string `json:"id"`
			CrewCode string `json:"crew_code"`
		}
		if err := json.Unmarshal(result.Crew, &crew); err != nil {
			return err
		}

		printSuccess("Provisioned crew %s (%s), %d backing tables", crew.ID, crew.CrewCode, result.TablesCreated)
		return nil
	},
}

var crewsDeprovisionCmd = &cobra.Command{
	Use:   "deprovision <crew-id>",
	Short: "Delete a crew and drop its backing tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/crews/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		resp.Body.Close()

		printSuccess("Deprovisioned crew %s", args[0])
		return nil
	},
}

func init() {
	clientsCreateCmd.Flags().String("code", "", "client code, e.g. ACME-001")
	clientsCreateCmd.Flags().String("name", "", "company name")
	clientsCreateCmd.Flags().String("plan", "starter", "billing plan")

	crewsProvisionCmd.Flags().String("client", "", "client code the crew belongs to")
	crewsProvisionCmd.Flags().String("name", "", "crew name")
	crewsProvisionCmd.Flags().String("type", "", "crew type: customer_support or lead_generation")
	crewsProvisionCmd.Flags().String("webhook-url", "", "optional webhook URL for crew events")

	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsCreateCmd)
	clientsCmd.AddCommand(clientsDeleteCmd)

	crewsCmd.AddCommand(crewsListCmd)
	crewsCmd.AddCommand(crewsProvisionCmd)
	crewsCmd.AddCommand(crewsDeprovisionCmd)
}
