package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRLSService calls an external row-level-security service over HTTP
// (spec §6 "RLS service: enforce(sql, user_id, role, attributes) ->
// {modified_sql, applied, reason, policies_applied}").
type HTTPRLSService struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPRLSService(baseURL string) *HTTPRLSService {
	return &HTTPRLSService{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

type rlsRequest struct {
	SQL        string            `json:"sql"`
	UserID     string            `json:"user_id"`
	Role       string            `json:"role"`
	Attributes map[string]string `json:"attributes"`
}

type rlsResponse struct {
	ModifiedSQL     string   `json:"modified_sql"`
	Applied         bool     `json:"applied"`
	Reason          string   `json:"reason"`
	PoliciesApplied []string `json:"policies_applied"`
}

func (h *HTTPRLSService) Enforce(ctx context.Context, sql, userID, role string, attributes map[string]string) (RLSResult, error) {
	body, err := json.Marshal(rlsRequest{SQL: sql, UserID: userID, Role: role, Attributes: attributes})
	if err != nil {
		return RLSResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/enforce", bytes.NewReader(body))
	if err != nil {
		return RLSResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return RLSResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RLSResult{}, fmt.Errorf("rls service returned status %d", resp.StatusCode)
	}

	var out rlsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RLSResult{}, err
	}

	return RLSResult{
		ModifiedSQL:     out.ModifiedSQL,
		Applied:         out.Applied,
		Reason:          out.Reason,
		PoliciesApplied: out.PoliciesApplied,
	}, nil
}
