package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bodhi-ai/bodhi/internal/printer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of all companion services",
	Long: `Show the health of all companion services by probing each service's
HTTP health endpoint, plus the gateway's status endpoint for worker
liveness and collaborator connectivity.

Services are probed at the listen addresses from the configuration,
assuming they run on this host.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusHTTPTimeout bounds each probe so a hung service cannot stall the
// whole status report.
const statusHTTPTimeout = 2 * time.Second

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: statusHTTPTimeout}

	printer.Info("Instance: %s\n\n", cfg.Instance)

	services := []struct {
		name   string
		listen string
	}{
		{"gateway", cfg.Gateway.Listen},
		{"memory-manager", cfg.Memory.Listen},
		{"language-center", cfg.Language.Listen},
		{"emotion-regulator", cfg.Emotion.Listen},
	}

	healthy := 0
	for _, svc := range services {
		if probeHealth(client, svc.listen) {
			printer.Success("%-18s healthy (%s)\n", svc.name, svc.listen)
			healthy++
		} else {
			printer.Warning("%-18s unreachable (%s)\n", svc.name, svc.listen)
		}
	}

	printGatewayStatus(client, cfg.Gateway.Listen)

	if healthy < len(services) {
		return printer.Error(
			fmt.Sprintf("%d of %d services unreachable", len(services)-healthy, len(services)),
			"One or more companion services did not respond to a health probe.",
			[]string{
				"Check that every service is running (bodhi gateway, bodhi memory, ...)",
				"Check the listen addresses in companion.yml match the running services",
			},
		)
	}
	return nil
}

// probeHealth returns true when GET /health answers 200.
func probeHealth(client *http.Client, listen string) bool {
	resp, err := client.Get(serviceURL(listen) + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// printGatewayStatus prints worker liveness and collaborator connectivity
// from the gateway's status endpoint. Best effort: a dead gateway was
// already reported by the health probe.
func printGatewayStatus(client *http.Client, listen string) {
	resp, err := client.Get(serviceURL(listen) + "/status")
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var status struct {
		MemoryMB      float64         `json:"memory_mb"`
		ActiveWorkers []string        `json:"active_workers"`
		Sessions      int             `json:"ws_sessions"`
		Connections   map[string]bool `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return
	}

	printer.Println()
	printer.Info("Gateway memory:     %.1f MB\n", status.MemoryMB)
	printer.Info("WebSocket sessions: %d\n", status.Sessions)

	if len(status.ActiveWorkers) > 0 {
		sort.Strings(status.ActiveWorkers)
		printer.Info("Active workers:     %s\n", strings.Join(status.ActiveWorkers, ", "))
	} else {
		printer.Warning("No active workers (no heartbeats within the staleness threshold)\n")
	}

	for name, connected := range status.Connections {
		if connected {
			printer.Success("Connected to %s\n", name)
		} else {
			printer.Warning("Not connected to %s\n", name)
		}
	}
}

// serviceURL turns a listen address like ":8000" into a probe URL on the
// local host.
func serviceURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}
