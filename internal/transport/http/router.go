// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/domain"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/metrics"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/orchestrator"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/transport/middleware"
)

type createDeploymentRequest struct {
	SiteID   string `json:"site_id"`
	OrgID    string `json:"org_id"`
	SiteName string `json:"site_name"`
}

type provisionSiteRequest struct {
	SiteID            string   `json:"site_id"`
	OrgID             string   `json:"org_id"`
	SiteName          string   `json:"site_name"`
	ZoneID            int      `json:"zone_id"`
	SiteNum           int      `json:"site_num"`
	Address           string   `json:"address"`
	Timezone          string   `json:"timezone"`
	CountryCode       string   `json:"country_code"`
	GatewayTemplateID string   `json:"gatewaytemplate_id"`
	NetworkTemplateID string   `json:"networktemplate_id"`
	RFTemplateID      string   `json:"rftemplate_id"`
	ClaimCodes        []string `json:"claim_codes"`
	SerialNumbers     []string `json:"serial_numbers"`
}

type Deps struct {
	Workflow    DeploymentManager
	Provisioner Provisioner
	Planner     SubnetPlanner
	Logger      *slog.Logger
	AdminToken  string
	Version     string
	Commit      string
	BuildDate   string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- NETWORK PLANNING ----------------

	r.Get("/network/zones/{zoneID}", func(w http.ResponseWriter, r *http.Request) {
		zoneID, err := strconv.Atoi(chi.URLParam(r, "zoneID"))
		if err != nil {
			http.Error(w, "invalid zone id", http.StatusBadRequest)
			return
		}

		summary, err := deps.Planner.Zone(zoneID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/network/zones/{zoneID}/sites/{siteNum}", func(w http.ResponseWriter, r *http.Request) {
		zoneID, err := strconv.Atoi(chi.URLParam(r, "zoneID"))
		if err != nil {
			http.Error(w, "invalid zone id", http.StatusBadRequest)
			return
		}
		siteNum, err := strconv.Atoi(chi.URLParam(r, "siteNum"))
		if err != nil {
			http.Error(w, "invalid site number", http.StatusBadRequest)
			return
		}

		alloc, err := deps.Planner.SiteSubnets(zoneID, siteNum)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusOK, alloc)
	})

	// ---------------- DEPLOYMENT READS ----------------

	r.Get("/deployments", func(w http.ResponseWriter, r *http.Request) {
		siteIDs := deps.Workflow.ListDeployments(r.Context())
		if siteIDs == nil {
			siteIDs = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"site_ids": siteIDs,
		})
	})

	r.Get("/deployments/{siteID}", func(w http.ResponseWriter, r *http.Request) {
		siteID := chi.URLParam(r, "siteID")

		state, err := deps.Workflow.GetDeployment(r.Context(), siteID)
		if err != nil {
			if errors.Is(err, domain.ErrDeploymentNotFound) {
				http.Error(w, "deployment not found", http.StatusNotFound)
				return
			}
			logger.Error("get deployment failed", "site_id", siteID, "error", err)
			http.Error(w, "failed to get deployment", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, state)
	})

	// ---------------- DEPLOYMENT MUTATIONS (ADMIN) ----------------

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

		admin.Post("/deployments", func(w http.ResponseWriter, r *http.Request) {
			reqBody, err := decodeCreateDeploymentRequest(r)
			if err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			state, err := deps.Workflow.CreateDeployment(r.Context(), reqBody.SiteID, reqBody.OrgID, reqBody.SiteName)
			if err != nil {
				writeWorkflowError(w, logger, "create deployment", reqBody.SiteID, err)
				return
			}

			logger.Info("deployment created via API", "site_id", reqBody.SiteID)
			writeJSON(w, http.StatusCreated, state)
		})

		admin.Post("/deployments/{siteID}/restart", func(w http.ResponseWriter, r *http.Request) {
			siteID := chi.URLParam(r, "siteID")

			state, err := deps.Workflow.RestartDeployment(r.Context(), siteID)
			if err != nil {
				writeWorkflowError(w, logger, "restart deployment", siteID, err)
				return
			}

			logger.Info("deployment restarted via API", "site_id", siteID)
			writeJSON(w, http.StatusOK, state)
		})

		admin.Post("/sites/provision", func(w http.ResponseWriter, r *http.Request) {
			if deps.Provisioner == nil {
				http.Error(w, "provisioning is not configured", http.StatusServiceUnavailable)
				return
			}

			reqBody, err := decodeProvisionSiteRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			state, err := deps.Provisioner.Run(r.Context(), orchestrator.ProvisionRequest{
				SiteID:            reqBody.SiteID,
				OrgID:             reqBody.OrgID,
				SiteName:          reqBody.SiteName,
				ZoneID:            reqBody.ZoneID,
				SiteNum:           reqBody.SiteNum,
				Address:           reqBody.Address,
				Timezone:          reqBody.Timezone,
				CountryCode:       reqBody.CountryCode,
				GatewayTemplateID: reqBody.GatewayTemplateID,
				NetworkTemplateID: reqBody.NetworkTemplateID,
				RFTemplateID:      reqBody.RFTemplateID,
				ClaimCodes:        reqBody.ClaimCodes,
				SerialNumbers:     reqBody.SerialNumbers,
			})
			if err != nil {
				writeWorkflowError(w, logger, "provision site", reqBody.SiteID, err)
				return
			}

			// A failed step is recorded on the deployment, not surfaced as
			// an HTTP failure; the aggregate tells the caller what stopped.
			writeJSON(w, http.StatusOK, state)
		})
	})

	return r
}

func writeWorkflowError(w http.ResponseWriter, logger *slog.Logger, op, siteID string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSiteID) || errors.Is(err, domain.ErrInvalidStepNum):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrDeploymentNotFound):
		http.Error(w, "deployment not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrDeploymentExists):
		http.Error(w, "deployment already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrDeploymentNotRestartable):
		http.Error(w, "deployment is not in a restartable state", http.StatusConflict)
	case errors.Is(err, domain.ErrConflict):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "concurrent update conflict, retry", http.StatusConflict)
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.Error(op+" failed: store unavailable", "site_id", siteID, "error", err)
		http.Error(w, "state store unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error(op+" failed", "site_id", siteID, "error", err)
		http.Error(w, "failed to "+op, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeCreateDeploymentRequest(r *http.Request) (createDeploymentRequest, error) {
	var req createDeploymentRequest
	if err := decodeSingleJSONObject(r, &req); err != nil {
		return createDeploymentRequest{}, err
	}

	req.SiteID = strings.TrimSpace(req.SiteID)
	req.OrgID = strings.TrimSpace(req.OrgID)
	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteID == "" {
		return createDeploymentRequest{}, domain.ErrInvalidSiteID
	}

	return req, nil
}

func decodeProvisionSiteRequest(r *http.Request) (provisionSiteRequest, error) {
	var req provisionSiteRequest
	if err := decodeSingleJSONObject(r, &req); err != nil {
		return provisionSiteRequest{}, errors.New("invalid request body")
	}

	req.SiteID = strings.TrimSpace(req.SiteID)
	if req.SiteID == "" {
		return provisionSiteRequest{}, domain.ErrInvalidSiteID
	}
	if req.ZoneID < 1 || req.ZoneID > 255 {
		return provisionSiteRequest{}, errors.New("zone_id must be 1-255")
	}
	if req.SiteNum < 1 || req.SiteNum > 255 {
		return provisionSiteRequest{}, errors.New("site_num must be 1-255")
	}

	if req.Timezone == "" {
		req.Timezone = "America/Los_Angeles"
	}
	if req.CountryCode == "" {
		req.CountryCode = "US"
	}

	return req, nil
}

func decodeSingleJSONObject(r *http.Request, dst any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errors.New("empty request body")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}

	return nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
