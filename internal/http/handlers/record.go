package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/roomrec/internal/recording"
)

// RecordHandler serves the legacy /record command endpoints. They are raw
// chi handlers because the clients post urlencoded forms and expect the
// legacy envelope regardless of outcome.
type RecordHandler struct {
	manager *recording.Manager
	logger  *slog.Logger
}

// NewRecordHandler creates a record handler.
func NewRecordHandler(manager *recording.Manager, logger *slog.Logger) *RecordHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts the legacy endpoints on the router root.
func (h *RecordHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Route("/record", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/configure", h.configure)
		r.Post("/reset", h.reset)
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Post("/pause", h.pause)
		r.Post("/screen", h.screen)
		r.Post("/camera", h.camera)
	})
}

// DocumentRoutes adds the legacy endpoints to the OpenAPI document. The
// routes themselves stay on raw chi handlers; this only makes them visible
// in the generated docs.
func (h *RecordHandler) DocumentRoutes(api huma.API) {
	ops := []struct {
		id, path, summary string
	}{
		{"recordConfigure", "/record/configure", "Configure a recording room"},
		{"recordReset", "/record/reset", "Reset a room, discarding its state"},
		{"recordStart", "/record/start", "Start or resume recording"},
		{"recordStop", "/record/stop", "Stop recording and post-process"},
		{"recordPause", "/record/pause", "Pause recording"},
		{"recordScreen", "/record/screen", "Toggle screen capture"},
		{"recordCamera", "/record/camera", "Switch the foreground camera"},
	}
	for _, op := range ops {
		api.OpenAPI().AddOperation(&huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Description: `Legacy form endpoint; responds 200 with {"state": s, "code": message}.`,
			Tags:        []string{"Record"},
		})
	}
}

func (h *RecordHandler) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Recording the conference!"))
}

// status reports room state in the data variant of the legacy envelope.
// With a room parameter it returns that room's snapshot, otherwise all of
// them.
func (h *RecordHandler) status(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		writeLegacyData(w, h.logger, 1, "See data.", h.manager.Rooms())
		return
	}
	st, ok := h.manager.Status(roomID)
	if !ok {
		writeLegacy(w, h.logger, -3, "Room "+roomID+" not found")
		return
	}
	writeLegacyData(w, h.logger, 1, "See data.", st)
}

func (h *RecordHandler) configure(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	req := recording.ConfigureRequest{
		Room:         r.PostFormValue("room"),
		ClassID:      r.PostFormValue("class_id"),
		CloudClassID: r.PostFormValue("cloud_class_id"),
		UploadServer: r.PostFormValue("upload_server"),
		Cam1:         r.PostFormValue("cam1"),
		Cam2:         r.PostFormValue("cam2"),
		Mic:          r.PostFormValue("mic"),
		Monitor:      r.PostFormValue("monitor"),
	}
	// Older clients send a per-room gateway URL; the gateway is fixed
	// server-side now, so the field is accepted and ignored.
	if gw := r.PostFormValue("janus"); gw != "" {
		h.logger.Debug("ignoring per-room gateway override",
			slog.String("room", req.Room),
			slog.String("gateway", gw))
	}

	msg, err := h.manager.Configure(r.Context(), req)
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	msg, err := h.manager.Reset(r.Context(), r.PostFormValue("room"))
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	req := recording.StartRequest{
		Room:   r.PostFormValue("room"),
		Cam:    r.PostFormValue("cam"),
		Mic:    r.PostFormValue("mic"),
		Screen: r.PostFormValue("screen") == "1",
	}
	msg, err := h.manager.Start(r.Context(), req)
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	msg, err := h.manager.Stop(r.Context(), r.PostFormValue("room"))
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) pause(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	msg, err := h.manager.Pause(r.Context(), r.PostFormValue("room"))
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) screen(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	// A malformed cmd falls through as 0 so the manager reports it the
	// same way as any other out-of-range value.
	cmd, _ := strconv.Atoi(r.PostFormValue("cmd"))
	msg, err := h.manager.Screen(r.Context(), r.PostFormValue("room"), cmd)
	writeOutcome(w, h.logger, msg, err)
}

func (h *RecordHandler) camera(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeLegacy(w, h.logger, -10, "parsing form: "+err.Error())
		return
	}
	req := recording.CameraRequest{
		Room: r.PostFormValue("room"),
		Cam:  r.PostFormValue("cam"),
		Mic:  r.PostFormValue("mic"),
	}
	msg, err := h.manager.SwitchCamera(r.Context(), req)
	writeOutcome(w, h.logger, msg, err)
}
