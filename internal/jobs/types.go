package jobs

const (
	TaskStartSession = "session:start"
	TaskConvert      = "session:convert"
	TaskCancel       = "session:cancel"
	TaskUsageReport  = "usage:report"
)

// StartSessionPayload carries one uploaded video from the bot to the worker,
// which downloads it, probes it and opens the session.
type StartSessionPayload struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	FileID   string `json:"file_id"` // Telegram file_id
	FileName string `json:"file_name,omitempty"`
	Size     int64  `json:"size"` // declared size, already checked against the cap
}

// ConvertPayload is one profile selection against an open session. Batch sets the
// fixed resolution set; otherwise Resolution names the single target.
type ConvertPayload struct {
	SessionID  string `json:"session_id"`
	ChatID     int64  `json:"chat_id"`
	UserID     int64  `json:"user_id"`
	Batch      bool   `json:"batch,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Quality    string `json:"quality"`
	Format     string `json:"format"`
}

// CancelPayload aborts the submitter's running job, or drops an awaiting session.
type CancelPayload struct {
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// UsageReportPayload asks the worker to reply with the submitter's ledger stats.
type UsageReportPayload struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin,omitempty"` // include process-wide stats
}
