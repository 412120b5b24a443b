package amqp

import (
	"encoding/json"
	"time"
)

// ExportSyncMessage asks the export worker to push one assignment's week rows
// to the spreadsheet. It carries only the ID, the worker fetches the rows
// from the database.
type ExportSyncMessage struct {
	AssignmentID int64     `json:"assignment_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// ExportDeleteMessage asks the export worker to remove an assignment's rows
// from the spreadsheet. The database rows are already gone by the time this
// is published, so the ID is all the worker gets.
type ExportDeleteMessage struct {
	AssignmentID int64     `json:"assignment_id"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewExportSyncMessage(assignmentID int64) *ExportSyncMessage {
	return &ExportSyncMessage{
		AssignmentID: assignmentID,
		Timestamp:    time.Now(),
	}
}

func NewExportDeleteMessage(assignmentID int64) *ExportDeleteMessage {
	return &ExportDeleteMessage{
		AssignmentID: assignmentID,
		Timestamp:    time.Now(),
	}
}

func (m *ExportSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ExportDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExportSyncMessageFromJSON(data []byte) (*ExportSyncMessage, error) {
	var msg ExportSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func ExportDeleteMessageFromJSON(data []byte) (*ExportDeleteMessage, error) {
	var msg ExportDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
