package handler

import (
	"time"

	"schooladmin/internal/audit/service"
	audit "schooladmin/pkg/platform/audit"
)

// ListResponse is the body of the listing endpoints.
type ListResponse struct {
	Records    []audit.Record     `json:"records"`
	Pagination PaginationResponse `json:"pagination"`
}

type PaginationResponse struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// StatsResponse is the body of GET /audit-logs/stats.
type StatsResponse struct {
	TotalLogs    int64           `json:"totalLogs"`
	ErrorLogs    int64           `json:"errorLogs"`
	SuccessRate  string          `json:"successRate"`
	TopActions   []ActionCount   `json:"topActions"`
	TopResources []ResourceCount `json:"topResources"`
	TopUsers     []UserCount     `json:"topUsers"`
}

type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

type ResourceCount struct {
	Resource string `json:"resource"`
	Count    int64  `json:"count"`
}

type UserCount struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Count  int64  `json:"count"`
}

// PurgeResponse is the body of DELETE /audit-logs/old.
type PurgeResponse struct {
	DeletedCount int64     `json:"deletedCount"`
	CutoffDate   time.Time `json:"cutoffDate"`
}

func FromListResult(res *service.ListResult) ListResponse {
	return ListResponse{
		Records: res.Records,
		Pagination: PaginationResponse{
			Page:  res.Pagination.Page,
			Limit: res.Pagination.Limit,
			Total: res.Pagination.Total,
			Pages: res.Pagination.Pages,
		},
	}
}

func FromStats(st *service.Stats) StatsResponse {
	resp := StatsResponse{
		TotalLogs:    st.TotalLogs,
		ErrorLogs:    st.ErrorLogs,
		SuccessRate:  st.SuccessRate,
		TopActions:   make([]ActionCount, 0, len(st.TopActions)),
		TopResources: make([]ResourceCount, 0, len(st.TopResources)),
		TopUsers:     make([]UserCount, 0, len(st.TopUsers)),
	}
	for _, b := range st.TopActions {
		resp.TopActions = append(resp.TopActions, ActionCount{Action: b.Key, Count: b.Count})
	}
	for _, b := range st.TopResources {
		resp.TopResources = append(resp.TopResources, ResourceCount{Resource: b.Key, Count: b.Count})
	}
	for _, u := range st.TopUsers {
		resp.TopUsers = append(resp.TopUsers, UserCount{UserID: u.UserID.String(), Name: u.Name, Count: u.Count})
	}
	return resp
}

func FromPurgeResult(res *service.PurgeResult) PurgeResponse {
	return PurgeResponse{DeletedCount: res.DeletedCount, CutoffDate: res.Cutoff}
}
