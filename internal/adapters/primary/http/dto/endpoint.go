package dto

import (
	"time"

	"github.com/google/uuid"

	"model-repository-service/internal/core/domain"
)

type CreateEndpointRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type ImportRequest struct {
	Path string `json:"path" binding:"required"`
}

type BuildRequest struct {
	DatasetPath string `json:"dataset_path" binding:"required"`
	Algorithm   string `json:"algorithm"`
	Workers     int    `json:"workers" binding:"min=0"`
}

// MutationResponse is the body of every state-changing call.
type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VersionResponse struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type PublishResponse struct {
	MutationResponse
	Version VersionResponse `json:"version"`
}

type EndpointTreeResponse struct {
	Endpoint string            `json:"endpoint"`
	Versions []VersionResponse `json:"versions"`
}

type ListEndpointsResponse struct {
	Items []EndpointTreeResponse `json:"items"`
	Total int                    `json:"total"`
}

type InfoItemResponse struct {
	Name  string `json:"name"`
	Unit  string `json:"unit"`
	Value any    `json:"value"`
}

type InfoResponse struct {
	Endpoint string             `json:"endpoint"`
	Version  string             `json:"version"`
	Backend  string             `json:"backend"`
	Items    []InfoItemResponse `json:"items"`
}

type VersionEventResponse struct {
	ID        uuid.UUID `json:"id"`
	Version   string    `json:"version"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	CreatedAt string    `json:"created_at"`
}

type HistoryResponse struct {
	Endpoint string                 `json:"endpoint"`
	Items    []VersionEventResponse `json:"items"`
}

type ExportResponse struct {
	MutationResponse
	Path string `json:"path"`
}

type ImportResponse struct {
	MutationResponse
	Endpoint string `json:"endpoint"`
}

type BuildResponse struct {
	MutationResponse
	Records  int                  `json:"records"`
	Features int                  `json:"features"`
	Chunks   int                  `json:"chunks"`
	Outcome  *domain.LearnOutcome `json:"outcome,omitempty"`
}

func Success(message string) MutationResponse {
	return MutationResponse{Success: true, Message: message}
}

func Failure(err error) MutationResponse {
	return MutationResponse{Success: false, Message: err.Error()}
}

func ToVersionResponse(v domain.Version) VersionResponse {
	return VersionResponse{ID: v.ID, Label: v.Label}
}

func ToEndpointTreeResponse(tree domain.EndpointTree) EndpointTreeResponse {
	versions := make([]VersionResponse, 0, len(tree.Versions))
	for _, v := range tree.Versions {
		versions = append(versions, ToVersionResponse(v))
	}
	return EndpointTreeResponse{Endpoint: tree.Endpoint, Versions: versions}
}

func ToInfoResponse(endpoint string, id int, info *domain.ModelInfo) InfoResponse {
	normalized := info.Normalized()
	items := make([]InfoItemResponse, 0, len(normalized))
	for _, it := range normalized {
		items = append(items, InfoItemResponse{Name: it.Name, Unit: it.Unit, Value: it.Value})
	}
	return InfoResponse{
		Endpoint: endpoint,
		Version:  domain.VersionLabel(id),
		Backend:  info.Backend,
		Items:    items,
	}
}

func ToHistoryResponse(endpoint string, events []*domain.VersionEvent) HistoryResponse {
	items := make([]VersionEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, VersionEventResponse{
			ID:        e.ID,
			Version:   domain.VersionLabel(e.Version),
			Action:    string(e.Action),
			Message:   e.Message,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return HistoryResponse{Endpoint: endpoint, Items: items}
}

func ToBuildResponse(report *domain.BuildReport, status MutationResponse) BuildResponse {
	resp := BuildResponse{MutationResponse: status}
	if report != nil {
		resp.Records = report.Records
		resp.Features = report.Features
		resp.Chunks = report.Chunks
		resp.Outcome = report.Outcome
	}
	return resp
}
