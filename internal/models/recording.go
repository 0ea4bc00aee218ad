package models

// RecordingState represents the terminal outcome of a recording.
type RecordingState string

const (
	// RecordingStateFinished indicates post-processing and upload completed.
	RecordingStateFinished RecordingState = "finished"
	// RecordingStateFailed indicates post-processing or upload failed;
	// local files are preserved for inspection.
	RecordingStateFailed RecordingState = "failed"
	// RecordingStateReaped indicates the retention sweep removed the
	// on-disk artifacts after their configured age.
	RecordingStateReaped RecordingState = "reaped"
)

// Recording is the catalog row persisted for every recording that reached a
// terminal state. Live room state is held in memory by the room manager;
// this row is what survives restarts.
type Recording struct {
	BaseModel

	// Room is the digit-string room identifier the recording belongs to.
	Room string `gorm:"not null;size:32;index" json:"room"`

	// ClassID and CloudClassID identify the classroom session upstream.
	ClassID      string `gorm:"size:64" json:"class_id"`
	CloudClassID string `gorm:"size:64" json:"cloud_class_id"`

	// State is the terminal outcome.
	State RecordingState `gorm:"not null;size:16;index" json:"state"`

	// OutputPath and ThumbnailPath are the final artifacts on disk.
	OutputPath    string `gorm:"size:512" json:"output_path"`
	ThumbnailPath string `gorm:"size:512" json:"thumbnail_path"`

	// DurationSeconds is the probed duration, rounded down.
	DurationSeconds int64 `json:"duration_seconds"`

	// SizeBytes is the probed output file size.
	SizeBytes int64 `json:"size_bytes"`

	// Segments is how many segments the recording chain contained.
	Segments int `json:"segments"`

	// PlayURL and CoverURL are the remote paths registered with the
	// classroom service after upload; empty when upload failed.
	PlayURL  string `gorm:"size:512" json:"play_url,omitempty"`
	CoverURL string `gorm:"size:512" json:"cover_url,omitempty"`

	// Error holds the failure reason for failed recordings.
	Error string `gorm:"size:1024" json:"error,omitempty"`
}

// TableName overrides the table name.
func (Recording) TableName() string {
	return "recordings"
}

// IsFailed reports whether the recording ended in failure.
func (r *Recording) IsFailed() bool {
	return r.State == RecordingStateFailed
}
