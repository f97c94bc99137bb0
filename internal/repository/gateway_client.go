package repository

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
)

const internalSecretHeader = "X-Internal-Secret"

// snapshotPayload matches the gateway's analysis-results contract.
type snapshotPayload struct {
	SymbolCode   string  `json:"symbolCode"`
	CurrentPrice float64 `json:"currentPrice"`
	SMA          float64 `json:"sma"`
	EMA          float64 `json:"ema"`
	Volume       int64   `json:"volume"`
	WindowSize   int     `json:"windowSize"`
	Timestamp    string  `json:"timestamp"`
}

// alertPayload matches the gateway's alerts contract.
type alertPayload struct {
	SymbolCode   string  `json:"symbolCode"`
	AlertType    string  `json:"alertType"`
	Threshold    float64 `json:"threshold"`
	TriggeredAt  string  `json:"triggeredAt"`
	Details      string  `json:"details"`
	Acknowledged bool    `json:"acknowledged"`
}

// HTTPGateway pushes snapshots and alerts to the internal gateway API.
type HTTPGateway struct {
	client  *xhttp.Client
	baseURL string
	secret  string
}

// NewHTTPGateway creates an HTTP gateway client.
func NewHTTPGateway(client *xhttp.Client, baseURL, secret string) repository.Gateway {
	return &HTTPGateway{client: client, baseURL: baseURL, secret: secret}
}

func (g *HTTPGateway) PushSnapshot(ctx context.Context, s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	err := g.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     g.baseURL + "/internal/analysis-results",
		Headers: g.headers(),
		Body: snapshotPayload{
			SymbolCode:   s.Symbol,
			CurrentPrice: s.CurrentPrice,
			SMA:          s.SMA,
			EMA:          s.EMA,
			Volume:       s.Volume,
			WindowSize:   s.WindowMinutes,
			Timestamp:    s.Timestamp.UTC().Format(time.RFC3339),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("push snapshot %s: %w", s.Symbol, err)
	}
	return nil
}

func (g *HTTPGateway) PushAlert(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}
	err := g.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     g.baseURL + "/internal/alerts",
		Headers: g.headers(),
		Body: alertPayload{
			SymbolCode:   a.Symbol,
			AlertType:    a.Kind.String(),
			Threshold:    a.Threshold,
			TriggeredAt:  a.TriggeredAt.UTC().Format(time.RFC3339),
			Details:      a.Details,
			Acknowledged: false,
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("push alert %s %s: %w", a.Symbol, a.Kind, err)
	}
	return nil
}

func (g *HTTPGateway) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if g.secret != "" {
		h[internalSecretHeader] = g.secret
	}
	return h
}
