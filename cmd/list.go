package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vodqueue/store"
)

var listPlaylist string

// listCmd reads the task database directly. The database is locked while
// serve runs; use watch against a running server instead.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads recorded in the task database",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listPlaylist, "playlist", "", "Only show downloads of this playlist")
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := store.OpenBitcask(globalConfig.DBPath)
	if err != nil {
		return fmt.Errorf("%w (is the server running? try 'vodqueue watch')", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("Error closing task database")
		}
	}()

	tasks, err := db.List(listPlaylist)
	if err != nil {
		return err
	}
	printTasks(os.Stdout, tasks)
	return nil
}
