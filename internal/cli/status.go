package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/spf13/cobra"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool status of a running broker",
	Long:  `Query a running broker's /status endpoint and print the account pool state.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://127.0.0.1:8080", "broker base URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(statusURL + "/status")
	if err != nil {
		return fmt.Errorf("broker not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var st pool.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Printf("Accounts: %d total, %d active\n", st.TotalAccounts, st.ActiveAccounts)
	fmt.Printf("Remaining budget: %d\n", st.TotalRemaining)
	for _, a := range st.Accounts {
		state := "active"
		if !a.Active {
			state = "exhausted"
		}
		fmt.Printf("  %-25s %-10s remaining=%d\n", a.Email, state, a.Remaining)
	}

	return nil
}
