package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nlsql/gateway/internal/domain"
)

// HTTPCostEstimator calls an external cost-estimator service over HTTP
// (spec §6 "Cost estimator: estimate(sql, dialect, include_plan?) ->
// CostEstimate"). A thin JSON client is stdlib net/http rather than a
// library: this pack carries no HTTP client wrapper beyond what each
// service already builds bespoke (see DESIGN.md).
type HTTPCostEstimator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPCostEstimator(baseURL string) *HTTPCostEstimator {
	return &HTTPCostEstimator{BaseURL: baseURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

type costRequest struct {
	SQL         string `json:"sql"`
	Dialect     string `json:"dialect"`
	IncludePlan bool   `json:"include_plan"`
}

type costResponse struct {
	TotalCost       float64  `json:"total_cost"`
	Cardinality     int64    `json:"cardinality"`
	Level           string   `json:"level"`
	HasFullScan     bool     `json:"has_full_scan"`
	Plan            string   `json:"plan"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

func (h *HTTPCostEstimator) Estimate(ctx context.Context, sql string, dialect domain.DatabaseKind, includePlan bool) (domain.CostEstimate, error) {
	body, err := json.Marshal(costRequest{SQL: sql, Dialect: string(dialect), IncludePlan: includePlan})
	if err != nil {
		return domain.CostEstimate{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/estimate", bytes.NewReader(body))
	if err != nil {
		return domain.CostEstimate{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return domain.CostEstimate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.CostEstimate{}, fmt.Errorf("cost estimator returned status %d", resp.StatusCode)
	}

	var out costResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.CostEstimate{}, err
	}

	return domain.CostEstimate{
		TotalCost:       out.TotalCost,
		Cardinality:     out.Cardinality,
		Level:           domain.CostLevel(out.Level),
		HasFullScan:     out.HasFullScan || planHasFullScan(out.Plan),
		Warnings:        out.Warnings,
		Recommendations: out.Recommendations,
		Plan:            out.Plan,
	}, nil
}

// fullScanNodeTypes are the EXPLAIN (FORMAT JSON) node types a Postgres or
// Doris query plan reports for an unindexed full-table read.
var fullScanNodeTypes = map[string]bool{
	"seq scan":         true,
	"table access full": true,
	"full table scan":  true,
}

// planHasFullScan corroborates the cost estimator's own HasFullScan flag
// by walking a raw EXPLAIN (FORMAT JSON) plan tree for a full-scan node,
// in case the estimator service reports the plan without classifying it.
// plan that isn't JSON (plain EXPLAIN text, or empty) is treated as
// unknown rather than a scan, since gjson parses non-JSON input as a
// single string result with no children to walk.
func planHasFullScan(plan string) bool {
	if strings.TrimSpace(plan) == "" || !gjson.Valid(plan) {
		return false
	}

	root := gjson.Parse(plan)
	candidates := root.IsArray() && root.Get("0.Plan").Exists()
	if candidates {
		root = root.Get("0.Plan")
	} else if root.Get("Plan").Exists() {
		root = root.Get("Plan")
	}
	return walkPlanNode(root)
}

func walkPlanNode(node gjson.Result) bool {
	if !node.Exists() {
		return false
	}
	if fullScanNodeTypes[strings.ToLower(node.Get("Node Type").String())] {
		return true
	}
	for _, child := range node.Get("Plans").Array() {
		if walkPlanNode(child) {
			return true
		}
	}
	return false
}
