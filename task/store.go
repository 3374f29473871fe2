package task

// Store is the durable record of every download task. Implementations must be
// safe for concurrent use and must have persisted a write before returning.
//
// Lookups of absent records return ErrNotFound.
type Store interface {
    // CreateOrUpdate inserts t when t.ID is zero and overwrites the stored
    // record otherwise. It returns the record's id.
    CreateOrUpdate(t *DownloadTask) (int64, error)
    FindByDedupKey(key DedupKey) (*DownloadTask, error)
    // Update applies mutate to the stored record and persists the result.
    Update(id int64, mutate func(*DownloadTask)) (*DownloadTask, error)
    // List returns tasks in creation order; an empty playlistID lists all.
    List(playlistID string) ([]*DownloadTask, error)
    Get(id int64) (*DownloadTask, error)
    Delete(id int64) error
    DeleteMany(statuses []Status, playlistID string) (int, error)
}
