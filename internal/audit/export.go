package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV serialises audit rows, newest first as listed.
func WriteCSV(w io.Writer, rows []EventView) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "created_at", "actor_id", "actor", "action", "table", "record_id", "source", "before", "after"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.ActorName,
			row.Action,
			row.AffectedTable,
			strconv.FormatInt(row.AffectedRecordID, 10),
			row.SourceAddress,
			string(row.Before),
			string(row.After),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
