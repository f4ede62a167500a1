package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// runnersCmd represents the runners command
var runnersCmd = &cobra.Command{
	Use:   "runners",
	Short: "Manage registered runners",
	Long:  `Commands for listing the remote runners registered with the orchestrator.`,
}

// runnersListCmd represents the runners list command
var runnersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered runners",
	Long:  `Retrieve and display all runners registered with the orchestrator.`,
	RunE:  runRunnersList,
}

func init() {
	rootCmd.AddCommand(runnersCmd)
	runnersCmd.AddCommand(runnersListCmd)
}

type runnerInfo struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	IP          string    `json:"ip" yaml:"ip"`
	LastContact time.Time `json:"lastContact" yaml:"lastContact"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
}

type runnersListResponse struct {
	Runners []runnerInfo `json:"runners" yaml:"runners"`
	Count   int          `json:"count" yaml:"count"`
}

func runRunnersList(cmd *cobra.Command, args []string) error {
	body, err := apiRequest("GET", "/api/v1/admin/runners", nil)
	if err != nil {
		return err
	}

	var result runnersListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !isTableOutput() {
		return renderStructured(result)
	}

	if len(result.Runners) == 0 {
		fmt.Println("No runners registered")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "IP", "Last contact")

	for _, runner := range result.Runners {
		lastContact := "-"
		if !runner.LastContact.IsZero() {
			lastContact = runner.LastContact.Format(time.RFC3339)
		}

		table.Append(
			runner.ID,
			runner.Name,
			runner.IP,
			lastContact,
		)
	}

	table.Render()
	fmt.Printf("\nTotal runners: %d\n", result.Count)
	return nil
}
