package tasks

import (
	"fmt"

	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/paging"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchTotal Phase = iota
	FetchPages
	SendBatches
	CreatePlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchTotal:
		return "fetch_total"
	case FetchPages:
		return "fetch_pages"
	case SendBatches:
		return "send_batches"
	case CreatePlaylist:
		return "create_playlist"
	default:
		return ""
	}
}

func fetchTotalUpdate(playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTotal,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching size of %s...", models.StoreKey(playlistID)),
	}
}

func fetchWindowUpdate(step, total int, w paging.Window) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching %s", step, total, w),
		Data:    w,
	}
}

func pageFetchedUpdate(step, total int, page *Page) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d items)", step, total, page.Window, len(page.Items)),
		Data:    page.Window,
	}
}

func pageFailedUpdate(step, total int, err *WindowError) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, err.Window, err.Err),
		Data:    err.Window,
	}
}

func sendBatchUpdate(step, total int, b paging.Batch) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] Adding %d items", step, total, len(b.Items))
	if b.Position != nil {
		msg = fmt.Sprintf("%s at position %d", msg, *b.Position)
	}
	return ProgressUpdate{
		Phase:   SendBatches,
		Step:    step,
		Total:   total,
		Message: msg,
	}
}

func createPlaylistUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}
