package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/roomrec/internal/version"
)

// VersionHandler serves build version information.
type VersionHandler struct{}

// NewVersionHandler creates a version handler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// Register registers the version route with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/v1/version",
		Summary:     "Build version",
		Tags:        []string{"System"},
	}, h.GetVersion)
}

// GetVersion returns the build version information.
func (h *VersionHandler) GetVersion(_ context.Context, _ *struct{}) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}
