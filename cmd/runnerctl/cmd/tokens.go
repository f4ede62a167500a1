package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// tokensCmd represents the tokens command
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage runner registration tokens",
	Long:  `Commands for listing and creating the pre-shared tokens runners use to register.`,
}

// tokensListCmd represents the tokens list command
var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registration tokens",
	Long:  `Retrieve and display all registration tokens known to the orchestrator.`,
	RunE:  runTokensList,
}

// tokensCreateCmd represents the tokens create command
var tokensCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new registration token",
	Long:  `Mint a new registration token runners can use to register with the orchestrator.`,
	RunE:  runTokensCreate,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensCreateCmd)
}

type registrationTokenInfo struct {
	ID                string    `json:"id" yaml:"id"`
	RegistrationToken string    `json:"registrationToken" yaml:"registrationToken"`
	CreatedAt         time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type tokensListResponse struct {
	RegistrationTokens []registrationTokenInfo `json:"registrationTokens" yaml:"registrationTokens"`
	Count              int                     `json:"count" yaml:"count"`
}

func runTokensList(cmd *cobra.Command, args []string) error {
	body, err := apiRequest("GET", "/api/v1/admin/registration-tokens", nil)
	if err != nil {
		return err
	}

	var result tokensListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !isTableOutput() {
		return renderStructured(result)
	}

	if len(result.RegistrationTokens) == 0 {
		fmt.Println("No registration tokens")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Token", "Created")

	for _, token := range result.RegistrationTokens {
		table.Append(
			token.ID,
			token.RegistrationToken,
			token.CreatedAt.Format(time.RFC3339),
		)
	}

	table.Render()
	fmt.Printf("\nTotal tokens: %d\n", result.Count)
	return nil
}

func runTokensCreate(cmd *cobra.Command, args []string) error {
	body, err := apiRequest("POST", "/api/v1/admin/registration-tokens", nil)
	if err != nil {
		return err
	}

	var token registrationTokenInfo
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !isTableOutput() {
		return renderStructured(token)
	}

	fmt.Printf("Registration token created: %s\n", token.RegistrationToken)
	return nil
}
