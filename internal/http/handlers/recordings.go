package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/roomrec/internal/models"
	"github.com/jmylchreest/roomrec/internal/repository"
	"github.com/jmylchreest/roomrec/pkg/duration"
	"github.com/jmylchreest/roomrec/pkg/format"
)

// RecordingsHandler serves the persisted recording catalog.
type RecordingsHandler struct {
	repo repository.RecordingRepository
}

// NewRecordingsHandler creates a recordings handler.
func NewRecordingsHandler(repo repository.RecordingRepository) *RecordingsHandler {
	return &RecordingsHandler{repo: repo}
}

// RecordingSummary is one catalog row shaped for the API.
type RecordingSummary struct {
	ID              string    `json:"id"`
	Room            string    `json:"room"`
	ClassID         string    `json:"class_id,omitempty"`
	State           string    `json:"state"`
	DurationSeconds int64     `json:"duration_seconds"`
	Duration        string    `json:"duration"`
	SizeBytes       int64     `json:"size_bytes"`
	Size            string    `json:"size"`
	Segments        int       `json:"segments"`
	PlayURL         string    `json:"play_url,omitempty"`
	CoverURL        string    `json:"cover_url,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Recorded        string    `json:"recorded"`
}

// ListRecordingsInput is the input for the recording list endpoint.
type ListRecordingsInput struct {
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum rows to return"`
	Room  string `query:"room" doc:"Only return recordings for this room"`
}

// ListRecordingsOutput is the output for the recording list endpoint.
type ListRecordingsOutput struct {
	Body struct {
		Recordings []RecordingSummary `json:"recordings"`
		Count      int                `json:"count"`
	}
}

// Register registers the recording routes with the API.
func (h *RecordingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      http.MethodGet,
		Path:        "/api/v1/recordings",
		Summary:     "List recordings",
		Description: "Returns finished and failed recordings from the catalog, newest first",
		Tags:        []string{"Recordings"},
	}, h.ListRecordings)
}

// ListRecordings returns catalog rows, newest first.
func (h *RecordingsHandler) ListRecordings(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	var (
		rows []*models.Recording
		err  error
	)
	if input.Room != "" {
		rows, err = h.repo.GetByRoom(ctx, input.Room)
	} else {
		rows, err = h.repo.GetRecent(ctx, input.Limit)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("listing recordings", err)
	}
	if input.Room != "" && input.Limit > 0 && len(rows) > input.Limit {
		rows = rows[:input.Limit]
	}

	out := &ListRecordingsOutput{}
	out.Body.Recordings = make([]RecordingSummary, 0, len(rows))
	for _, rec := range rows {
		out.Body.Recordings = append(out.Body.Recordings, RecordingSummary{
			ID:              rec.ID.String(),
			Room:            rec.Room,
			ClassID:         rec.ClassID,
			State:           string(rec.State),
			DurationSeconds: rec.DurationSeconds,
			Duration:        duration.Format(time.Duration(rec.DurationSeconds) * time.Second),
			SizeBytes:       rec.SizeBytes,
			Size:            format.Bytes(rec.SizeBytes),
			Segments:        rec.Segments,
			PlayURL:         rec.PlayURL,
			CoverURL:        rec.CoverURL,
			Error:           rec.Error,
			CreatedAt:       rec.CreatedAt,
			Recorded:        format.RelativeTime(rec.CreatedAt),
		})
	}
	out.Body.Count = len(out.Body.Recordings)
	return out, nil
}
