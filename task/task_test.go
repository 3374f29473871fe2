package task_test

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "vodqueue/task"
)

func TestStatus_IsTerminal(t *testing.T) {
    assert.False(t, task.StatusQueued.IsTerminal())
    assert.False(t, task.StatusDownloading.IsTerminal())
    for _, s := range task.TerminalStatuses {
        assert.True(t, s.IsTerminal(), s)
    }
}

func TestDownloadTask_Clone(t *testing.T) {
    total := int64(100)
    season := 1
    orig := &task.DownloadTask{
        ID:           1,
        Directory:    "/media",
        FileName:     "a.mp4",
        Headers:      &task.Headers{Referer: "http://portal"},
        TotalBytes:   &total,
        SeasonNumber: &season,
    }

    c := orig.Clone()
    *c.TotalBytes = 5
    *c.SeasonNumber = 9
    c.Headers.Referer = "changed"

    assert.Equal(t, int64(100), *orig.TotalBytes)
    assert.Equal(t, 1, *orig.SeasonNumber)
    assert.Equal(t, "http://portal", orig.Headers.Referer)
    assert.Equal(t, "/media/a.mp4", orig.Path())
    assert.Nil(t, (*task.DownloadTask)(nil).Clone())
}

func TestHeaders_HTTPHeader(t *testing.T) {
    var none *task.Headers
    assert.Empty(t, none.HTTPHeader())

    h := (&task.Headers{UserAgent: "UA", Origin: "http://o"}).HTTPHeader()
    assert.Equal(t, "UA", h.Get("User-Agent"))
    assert.Equal(t, "http://o", h.Get("Origin"))
    assert.Empty(t, h.Get("Referer"))
}

func TestEnqueueRequest_Validate(t *testing.T) {
    valid := task.EnqueueRequest{
        PlaylistID:        "p1",
        XtreamID:          1,
        ContentType:       task.ContentEpisode,
        Title:             "Pilot",
        URL:               "https://portal/series/1.mkv",
        DownloadDirectory: "/media",
    }
    assert.NoError(t, valid.Validate())

    cases := map[string]func(r *task.EnqueueRequest){
        "playlistId":        func(r *task.EnqueueRequest) { r.PlaylistID = "" },
        "xtreamId":          func(r *task.EnqueueRequest) { r.XtreamID = 0 },
        "contentType":       func(r *task.EnqueueRequest) { r.ContentType = "live" },
        "title":             func(r *task.EnqueueRequest) { r.Title = "" },
        "downloadDirectory": func(r *task.EnqueueRequest) { r.DownloadDirectory = "" },
        "url":               func(r *task.EnqueueRequest) { r.URL = "/relative/path.mp4" },
    }
    for field, mutate := range cases {
        r := valid
        mutate(&r)
        err := r.Validate()
        var verr *task.ValidationError
        if assert.ErrorAs(t, err, &verr, field) {
            assert.Equal(t, field, verr.Field)
        }
    }
}
