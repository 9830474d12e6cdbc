package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ericghara/no-doze/internal/config"
)

// Channel selects which transfer direction a Qbittorrent condition monitors
type Channel string

const (
	ChannelDownloading Channel = "downloading"
	ChannelSeeding     Channel = "seeding"

	bytesPerKB = 1024
)

// Qbittorrent inhibits sleep while the qBittorrent Web UI reports a transfer
// rate above the configured threshold. Rates fluctuate, so very short periods
// make poor thresholds; the Web UI must be enabled for this to work.
type Qbittorrent struct {
	hostURL  string
	username string
	password string
	channel  Channel
	period   time.Duration
	minSpeed int // bytes per second
	client   *http.Client
}

// transferInfo is the subset of /api/v2/transfer/info we care about
type transferInfo struct {
	DlSpeed int `json:"dl_info_speed"`
	UpSpeed int `json:"up_info_speed"`
}

// NewQbittorrent creates a condition monitoring one transfer channel
func NewQbittorrent(cfg config.QbitCondition, channel Channel) *Qbittorrent {
	ch := cfg.Downloading
	if channel == ChannelSeeding {
		ch = cfg.Seeding
	}
	jar, _ := cookiejar.New(nil)
	return &Qbittorrent{
		hostURL:  strings.TrimRight(cfg.HostURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		channel:  channel,
		period:   ch.Period,
		minSpeed: ch.MinSpeedKBps * bytesPerKB,
		client:   &http.Client{Jar: jar},
	}
}

func (q *Qbittorrent) Name() string {
	return fmt.Sprintf("qbittorrent/%s", q.channel)
}

func (q *Qbittorrent) Period() time.Duration {
	return q.period
}

// Check reports whether the monitored channel's rate meets the threshold
func (q *Qbittorrent) Check(ctx context.Context) (bool, error) {
	info, err := q.fetchTransferInfo(ctx)
	if err != nil {
		return false, err
	}

	speed := info.DlSpeed
	if q.channel == ChannelSeeding {
		speed = info.UpSpeed
	}
	return speed >= q.minSpeed, nil
}

func (q *Qbittorrent) fetchTransferInfo(ctx context.Context) (*transferInfo, error) {
	resp, err := q.get(ctx, "/api/v2/transfer/info")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden && q.username != "" {
		// session cookie missing or expired
		resp.Body.Close()
		if err := q.login(ctx); err != nil {
			return nil, err
		}
		if resp, err = q.get(ctx, "/api/v2/transfer/info"); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qbittorrent returned status %d", resp.StatusCode)
	}

	var info transferInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode transfer info: %w", err)
	}
	return &info, nil
}

func (q *Qbittorrent) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.hostURL+path, nil)
	if err != nil {
		return nil, err
	}
	return q.client.Do(req)
}

func (q *Qbittorrent) login(ctx context.Context) error {
	form := url.Values{
		"username": {q.username},
		"password": {q.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.hostURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qbittorrent login failed with status %d", resp.StatusCode)
	}
	return nil
}
