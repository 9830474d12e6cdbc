package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ericghara/no-doze/internal/config"
)

// Plex inhibits sleep while the Plex server reports active playback. Paused
// streams inhibit only for MaxPeriodsPaused periods so an abandoned pause
// does not keep the machine awake forever.
type Plex struct {
	baseURL      string
	token        string
	period       time.Duration
	pauseTimeout time.Duration
	paused       map[string]time.Time
	client       *http.Client
}

// plexSessions is the subset of the /status/sessions response we care about
type plexSessions struct {
	MediaContainer struct {
		Metadata []struct {
			SessionKey string `json:"sessionKey"`
			Player     struct {
				State string `json:"state"`
			} `json:"Player"`
		} `json:"Metadata"`
	} `json:"MediaContainer"`
}

// NewPlex creates a condition watching Plex playback sessions
func NewPlex(cfg config.PlexCondition) *Plex {
	var pauseTimeout time.Duration
	if cfg.MaxPeriodsPaused > 0 {
		pauseTimeout = time.Duration(cfg.MaxPeriodsPaused) * cfg.Period
	}
	return &Plex{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		period:       cfg.Period,
		pauseTimeout: pauseTimeout,
		paused:       make(map[string]time.Time),
		client:       &http.Client{},
	}
}

func (p *Plex) Name() string {
	return "plex-playback"
}

func (p *Plex) Period() time.Duration {
	return p.period
}

// Check reports whether any session is playing, or paused within its grace
func (p *Plex) Check(ctx context.Context) (bool, error) {
	sessions, err := p.fetchSessions(ctx)
	if err != nil {
		return false, err
	}

	inhibit := false
	current := make(map[string]bool)
	now := time.Now()

	for _, meta := range sessions.MediaContainer.Metadata {
		if strings.EqualFold(meta.Player.State, "paused") {
			current[meta.SessionKey] = true
			if _, ok := p.paused[meta.SessionKey]; !ok {
				p.paused[meta.SessionKey] = now
			}
			if now.Sub(p.paused[meta.SessionKey]) < p.pauseTimeout {
				inhibit = true
			}
			continue
		}
		inhibit = true
	}

	// forget sessions that resumed or ended
	for key := range p.paused {
		if !current[key] {
			delete(p.paused, key)
		}
	}

	return inhibit, nil
}

func (p *Plex) fetchSessions(ctx context.Context) (*plexSessions, error) {
	url := fmt.Sprintf("%s/status/sessions", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex returned status %d", resp.StatusCode)
	}

	var sessions plexSessions
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions response: %w", err)
	}
	return &sessions, nil
}
