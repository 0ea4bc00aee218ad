package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/roomrec/internal/recording"
)

// RoomsHandler serves room status over the JSON API.
type RoomsHandler struct {
	manager *recording.Manager
}

// NewRoomsHandler creates a rooms handler.
func NewRoomsHandler(manager *recording.Manager) *RoomsHandler {
	return &RoomsHandler{manager: manager}
}

// ListRoomsOutput is the output for the room list endpoint.
type ListRoomsOutput struct {
	Body struct {
		Rooms []recording.RoomStatus `json:"rooms"`
		Count int                    `json:"count"`
	}
}

// GetRoomInput is the input for the single-room endpoint.
type GetRoomInput struct {
	Room string `path:"room" doc:"Room identifier"`
}

// GetRoomOutput is the output for the single-room endpoint.
type GetRoomOutput struct {
	Body recording.RoomStatus
}

// Register registers the room routes with the API.
func (h *RoomsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRooms",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms",
		Summary:     "List live rooms",
		Description: "Returns a snapshot of every room currently held by the manager",
		Tags:        []string{"Rooms"},
	}, h.ListRooms)

	huma.Register(api, huma.Operation{
		OperationID: "getRoom",
		Method:      http.MethodGet,
		Path:        "/api/v1/rooms/{room}",
		Summary:     "Get one room",
		Tags:        []string{"Rooms"},
	}, h.GetRoom)
}

// ListRooms returns all live rooms sorted by identifier.
func (h *RoomsHandler) ListRooms(_ context.Context, _ *struct{}) (*ListRoomsOutput, error) {
	rooms := h.manager.Rooms()
	out := &ListRoomsOutput{}
	out.Body.Rooms = rooms
	out.Body.Count = len(rooms)
	return out, nil
}

// GetRoom returns one room's snapshot.
func (h *RoomsHandler) GetRoom(_ context.Context, input *GetRoomInput) (*GetRoomOutput, error) {
	st, ok := h.manager.Status(input.Room)
	if !ok {
		return nil, huma.Error404NotFound("room " + input.Room + " not found")
	}
	return &GetRoomOutput{Body: st}, nil
}
