package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"

	"vodqueue/task"
)

// printTasks writes tasks as an aligned table.
func printTasks(w io.Writer, tasks []*task.DownloadTask) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPlaylist\tType\tTitle\tStatus\tProgress\tError")
	fmt.Fprintln(tw, "--\t--------\t----\t-----\t------\t--------\t-----")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.PlaylistID,
			t.ContentType,
			t.Title,
			t.Status,
			formatProgress(t),
			t.ErrorMessage,
		)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(tw, "(no downloads)")
	}
	tw.Flush()
}

func formatProgress(t *task.DownloadTask) string {
	done := datasize.ByteSize(t.BytesDownloaded).HumanReadable()
	if t.TotalBytes == nil || *t.TotalBytes <= 0 {
		return done
	}
	pct := float64(t.BytesDownloaded) / float64(*t.TotalBytes) * 100
	return fmt.Sprintf("%.1f%% (%s / %s)", pct, done, datasize.ByteSize(*t.TotalBytes).HumanReadable())
}
