package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/spf13/cobra"
)

// apiClient is a minimal client for the relay's REST API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newRoomsCmd() *cobra.Command {
	var (
		serverURL string
		token     string
		format    string
	)

	client := func() (*apiClient, error) {
		if token == "" {
			token = envOr("RELAY_TOKEN", "")
		}
		if token == "" {
			return nil, errors.New("no credential: set --token or RELAY_TOKEN")
		}
		return &apiClient{baseURL: serverURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}, nil
	}

	roomsCmd := &cobra.Command{
		Use:   "rooms",
		Short: "Create and list rooms through the REST API",
	}
	roomsCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RELAY_URL", "http://localhost:8080"), "relay base URL")
	roomsCmd.PersistentFlags().StringVar(&token, "token", "", "credential, defaults to RELAY_TOKEN")
	roomsCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table or json")

	var (
		title   string
		isGroup bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room owned by the credential's user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var room domain.Room
			err = c.do(cmd.Context(), http.MethodPost, "/api/rooms", map[string]any{"title": title, "is_group": isGroup}, &room)
			if err != nil {
				return err
			}
			return printRooms(cmd.OutOrStdout(), format, []domain.Room{room})
		},
	}
	createCmd.Flags().StringVar(&title, "title", "", "room title")
	createCmd.Flags().BoolVar(&isGroup, "group", false, "mark the room as a group chat")
	_ = createCmd.MarkFlagRequired("title")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the rooms the credential's user belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			var resp struct {
				Rooms []domain.Room `json:"rooms"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/rooms", nil, &resp); err != nil {
				return err
			}
			return printRooms(cmd.OutOrStdout(), format, resp.Rooms)
		},
	}

	roomsCmd.AddCommand(createCmd, listCmd)
	return roomsCmd
}

func printRooms(w io.Writer, format string, rooms []domain.Room) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tGROUP\tCREATED BY\tCREATED AT")
	if len(rooms) == 0 {
		fmt.Fprintln(tw, "No rooms found")
	}
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", r.ID, r.Title, r.IsGroup, r.CreatedBy, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
