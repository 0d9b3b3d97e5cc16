package tariff

import "time"

type LogState string

const (
	LogPending LogState = "pending"
	LogDone    LogState = "done"
	LogError   LogState = "error"
)

// ImportLog records one processing attempt of one remote file.
type ImportLog struct {
	ID               string
	ProviderID       string
	JobID            string
	Protocol         Protocol
	FileName         string
	RemotePath       string
	State            LogState
	StartedAt        *time.Time
	EndedAt          *time.Time
	Duration         time.Duration
	TotalRows        int64
	SuccessRows      int64
	ErrorRows        int64
	Message          string
	RemoteModifiedAt *time.Time
	CreatedAt        time.Time
}
