// package formatter exports snapshots to files (JSON, CSV, Markdown, plain text) and reads JSON exports back
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/echo/internal/models"
	"github.com/desertthunder/echo/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// FormatFromPath picks the export format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unsupported export extension %q", shared.ErrInvalidInput, filepath.Ext(path))
	}
}

// ExportToJSON encodes a snapshot, including its format version, as indented JSON.
func ExportToJSON(snap *models.Snapshot) ([]byte, error) {
	if snap.FormatVersion == 0 {
		copied := *snap
		copied.FormatVersion = models.SnapshotFormatVersion
		snap = &copied
	}
	return shared.MarshalJSON(snap, true)
}

// ReadJSONExport decodes a JSON export, rejecting unknown format versions.
func ReadJSONExport(r io.Reader) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: failed to decode export: %v", shared.ErrInvalidInput, err)
	}
	if snap.FormatVersion != models.SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: unsupported export format version %d", shared.ErrInvalidInput, snap.FormatVersion)
	}
	return &snap, nil
}

// ReadJSONExportFile reads a JSON export from path.
func ReadJSONExportFile(path string) (*models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()
	return ReadJSONExport(f)
}

// ExportToCSV converts a snapshot to CSV format with columns: Position, ID, URI, Title, Artist, Album, Duration, ISRC
//
// Position is the track's index in the playlist, so it starts at the snapshot offset.
func ExportToCSV(snap *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the CSV form of a snapshot to w.
func WriteCSV(w io.Writer, snap *models.Snapshot) error {
	writer := csv.NewWriter(w)

	headers := []string{"Position", "ID", "URI", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range snap.Tracks {
		record := []string{
			strconv.FormatUint(uint64(snap.Offset)+uint64(i), 10),
			track.ID,
			track.URI,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// ExportToMarkdown converts a snapshot to a Markdown track listing.
func ExportToMarkdown(snap *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", snap.Name)
	fmt.Fprintf(&buf, "**Playlist**: %s\n", snap.PlaylistID)
	fmt.Fprintf(&buf, "**Tracks**: %d of %d (from position %d)\n", len(snap.Tracks), snap.Total, snap.Offset)
	fmt.Fprintf(&buf, "**Loaded**: %s\n\n", snap.CreatedAt.Format("2006-01-02 15:04 MST"))

	buf.WriteString("## Tracks\n\n")
	for i, track := range snap.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n",
			uint64(snap.Offset)+uint64(i)+1, track.Artist, track.Title, albumPart, shared.FormatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a snapshot to plain text format
func ExportToText(snap *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", snap.Name)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(snap.Tracks))

	for i, track := range snap.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", uint64(snap.Offset)+uint64(i)+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

// Export renders a snapshot in the given format.
func Export(snap *models.Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(snap)
	case FormatCSV:
		return ExportToCSV(snap)
	case FormatMarkdown:
		return ExportToMarkdown(snap)
	case FormatText:
		return ExportToText(snap)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}
}

// WriteExport writes a snapshot to path in the format implied by its extension.
func WriteExport(snap *models.Snapshot, path string) (Format, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}

	data, err := Export(snap, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return format, nil
}
