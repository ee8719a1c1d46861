package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

const reportPrefix = "reports"

// ReportArchiver keeps every cycle report as a JSON object under
// reports/YYYY/MM/DD/<cycle_id>.json.
type ReportArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewReportArchiver creates a ReportArchiver. reader may be nil when only
// archiving is needed.
func NewReportArchiver(writer domain.BlobWriter, reader domain.BlobReader) *ReportArchiver {
	return &ReportArchiver{writer: writer, reader: reader}
}

// ReportPath returns the object key for a report.
func ReportPath(startedAt time.Time, cycleID string) string {
	return path.Join(dayPrefix(startedAt), cycleID+".json")
}

func dayPrefix(day time.Time) string {
	return path.Join(reportPrefix, day.UTC().Format("2006/01/02"))
}

// Publish uploads report.
func (a *ReportArchiver) Publish(ctx context.Context, report domain.CycleReport) error {
	buf, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: encode report %s: %w", report.CycleID, err)
	}
	key := ReportPath(report.StartedAt, report.CycleID)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive report %s: %w", report.CycleID, err)
	}
	return nil
}

// ListDay returns the cycle IDs archived on the given UTC day, oldest first.
func (a *ReportArchiver) ListDay(ctx context.Context, day time.Time) ([]string, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: report archive is write-only")
	}
	infos, err := a.reader.List(ctx, dayPrefix(day)+"/")
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastModified.Before(infos[j].LastModified)
	})
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		base := path.Base(info.Path)
		if strings.HasSuffix(base, ".json") {
			ids = append(ids, strings.TrimSuffix(base, ".json"))
		}
	}
	return ids, nil
}

// Get returns the raw JSON of one archived report.
func (a *ReportArchiver) Get(ctx context.Context, day time.Time, cycleID string) ([]byte, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: report archive is write-only")
	}
	body, err := a.reader.Get(ctx, ReportPath(day, cycleID))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read report %s: %w", cycleID, err)
	}
	return data, nil
}
