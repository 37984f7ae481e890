package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/pmr_assist/backend/internal/models"
)

// HTTPAdapter reads live signals from the operations API.
type HTTPAdapter struct {
	BaseURL string
	Client  *http.Client
}

type incidentItem struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
}

type incidentsResponse struct {
	Incidents []incidentItem `json:"incidents"`
}

type connectionResponse struct {
	MinutesUntilConnection *int `json:"minutes_until_connection"`
}

type delayResponse struct {
	DelayMinutes int `json:"delay_minutes"`
}

func (h HTTPAdapter) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	var r incidentsResponse
	if err := h.get(ctx, "/incidents?status=active&user_id="+url.QueryEscape(userID), &r); err != nil {
		return nil, err
	}
	out := make([]models.Incident, 0, len(r.Incidents))
	for _, item := range r.Incidents {
		sev, err := models.ParseIncidentSeverity(item.Severity)
		if err != nil {
			// an unknown severity cannot trigger escalation
			sev = models.SeverityLow
		}
		out = append(out, models.Incident{ID: item.ID, UserID: item.UserID, Severity: sev, Title: item.Title})
	}
	return out, nil
}

func (h HTTPAdapter) MinutesUntilNextConnection(ctx context.Context, m models.Mission) (*int, error) {
	var r connectionResponse
	if err := h.get(ctx, "/missions/"+url.PathEscape(m.ID)+"/connection", &r); err != nil {
		return nil, err
	}
	return r.MinutesUntilConnection, nil
}

func (h HTTPAdapter) CurrentDelayMinutes(ctx context.Context, m models.Mission) (int, error) {
	var r delayResponse
	if err := h.get(ctx, "/missions/"+url.PathEscape(m.ID)+"/delay", &r); err != nil {
		return 0, err
	}
	if r.DelayMinutes < 0 {
		return 0, nil
	}
	return r.DelayMinutes, nil
}

func (h HTTPAdapter) get(ctx context.Context, path string, out any) error {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("signals service error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
