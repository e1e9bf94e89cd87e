package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Run the generation pipeline for a topic right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating content for %q...", args[0])
		resp, err := client.post(cmd.Context(), "/generate", map[string]string{"topic": args[0]})
		if err != nil {
			return err
		}

		var record map[string]any
		if err := decodeJSON(resp, &record); err != nil {
			return err
		}

		printSuccess("Published post %v (%v ms)", record["remotePostId"], record["generationMs"])
		return nil
	},
}

// --- enqueue ---

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <topic>",
	Short: "Schedule a generation job",
	Long: `Schedule a generation job.

Examples:
  reelpost enqueue "crypto romance scams" --at 2026-09-02T08:00:00Z
  reelpost enqueue "phishing red flags" --daily`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		daily, _ := cmd.Flags().GetBool("daily")

		runAt := time.Now().UTC()
		if at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			runAt = parsed
		}
		kind := "once"
		if daily {
			kind = "daily"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/jobs", map[string]any{
			"topic": args[0],
			"runAt": runAt.Format(time.RFC3339),
			"kind":  kind,
		})
		if err != nil {
			return err
		}

		var job map[string]any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		printSuccess("Enqueued %s job %v for %v", kind, job["id"], job["runAt"])
		return nil
	},
}

func init() {
	enqueueCmd.Flags().String("at", "", "RFC3339 instant to run at (default: now)")
	enqueueCmd.Flags().Bool("daily", false, "recur daily instead of running once")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs")
		if err != nil {
			return err
		}

		var jobs []map[string]any
		if err := decodeJSON(resp, &jobs); err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("no jobs")
			return nil
		}
		for _, j := range jobs {
			line := fmt.Sprintf("%v  %-7v  %-5v  %v  %v",
				j["id"], j["status"], j["kind"], j["runAt"], j["payload"].(map[string]any)["topic"])
			if lastErr, ok := j["lastError"].(string); ok && lastErr != "" {
				line += "  (" + lastErr + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- keys ---

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API credentials",
}

var keysListCmd = &cobra.Command{
	Use:   "list <provider>",
	Short: "List a provider's credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/credentials/"+args[0])
		if err != nil {
			return err
		}

		var creds []map[string]any
		if err := decodeJSON(resp, &creds); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(creds)
	},
}

var keysAddCmd = &cobra.Command{
	Use:   "add <provider> <secret>",
	Short: "Add a credential to a provider's pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/credentials/"+args[0], map[string]string{
			"secret": args[1],
			"label":  label,
		})
		if err != nil {
			return err
		}

		var cred map[string]any
		if err := decodeJSON(resp, &cred); err != nil {
			return err
		}

		printSuccess("Added %s credential %v", args[0], cred["id"])
		return nil
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <provider> <id>",
	Short: "Remove a credential from a provider's pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/credentials/"+args[0]+"/"+args[1])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Removed credential %s", args[1])
		return nil
	},
}

func init() {
	keysAddCmd.Flags().String("label", "", "label for the credential")
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysRemoveCmd)
}

// --- posts ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recently published posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/posts?limit=%d", limit))
		if err != nil {
			return err
		}

		var posts []map[string]any
		if err := decodeJSON(resp, &posts); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	},
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent event-log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/logs?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []map[string]any
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("%v [%v] %v: %v\n", e["createdAt"], e["level"], e["source"], e["message"])
		}
		return nil
	},
}

func init() {
	postsCmd.Flags().Int("limit", 10, "maximum number of posts")
	logsCmd.Flags().Int("limit", 50, "maximum number of entries")
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lifecycle events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), "GET", client.baseURL+"/events", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+client.token)

		streamClient := &http.Client{} // no timeout: the stream is long-lived
		resp, err := streamClient.Do(req)
		if err != nil {
			return fmt.Errorf("server not reachable — is reelpost running? (%w)", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printStep("Watching events (Ctrl-C to stop)")
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimPrefix(scanner.Text(), "data: ")
			if line == "" {
				continue
			}
			var ev map[string]any
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				continue
			}
			fmt.Printf("%v  %v\n", ev["at"], ev["type"])
		}
		if err := scanner.Err(); err != nil && cmd.Context().Err() == nil {
			return err
		}
		return nil
	},
}

// --- password ---

var passwordCmd = &cobra.Command{
	Use:   "password <new-password>",
	Short: "Set the admin password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(context.Background(), "/admin/password", map[string]string{
			"password": args[0],
		})
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Admin password updated")
		return nil
	},
}
