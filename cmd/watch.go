package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"

	"vodqueue/task"
)

var (
	watchServer   string
	watchKey      string
	watchPlaylist string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live view of a running server's queue",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchServer, "server", "", "Server base URL (default: http://localhost:<PORT>)")
	watchCmd.Flags().StringVar(&watchKey, "key", "", "Bearer token (default: AUTH_KEY from config)")
	watchCmd.Flags().StringVar(&watchPlaylist, "playlist", "", "Only show downloads of this playlist")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Refresh interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	server := watchServer
	if server == "" {
		server = "http://localhost:" + globalConfig.Port
	}
	key := watchKey
	if key == "" {
		key = globalConfig.AuthKey
	}
	if watchInterval <= 0 {
		watchInterval = time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		tasks, err := fetchDownloads(ctx, client, server, key, watchPlaylist)
		if err != nil {
			fmt.Fprintf(writer, "%s: %v\n", server, err)
		} else {
			printTasks(writer, tasks)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// fetchDownloads lists the downloads of a running server.
func fetchDownloads(ctx context.Context, client *http.Client, server, key, playlist string) ([]*task.DownloadTask, error) {
	endpoint := strings.TrimSuffix(server, "/") + "/api/v1/downloads"
	if playlist != "" {
		endpoint += "?playlistId=" + url.QueryEscape(playlist)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var tasks []*task.DownloadTask
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("error decoding downloads: %w", err)
	}
	return tasks, nil
}
