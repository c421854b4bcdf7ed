// Package notifier pushes layered webhook notifications: one interactive
// card per top-ranked candidate followed by an aggregate summary, with a
// persistent per-URL counter suppressing anything surfaced too many times.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// HistoryStore is the notification dedup tracker as the notifier sees it
type HistoryStore interface {
	Count(ctx context.Context, url string) (int, error)
	Increment(ctx context.Context, url, title string) (int, error)
}

// Notifier sends cards and summaries to the chat webhook
type Notifier struct {
	cfg      config.NotifyConfig
	weights  domain.ScoreWeights
	history  HistoryStore
	tableURL string
	client   *http.Client
	now      func() time.Time
	sleep    func(time.Duration)
}

// New creates the notifier; an empty webhook URL disables all pushes
func New(cfg config.NotifyConfig, weights domain.ScoreWeights, history HistoryStore, tableURL string) *Notifier {
	return &Notifier{
		cfg:      cfg,
		weights:  weights,
		history:  history,
		tableURL: tableURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Result reports what a Notify call pushed and suppressed
type Result struct {
	Cards      int
	Suppressed int
	Summary    bool
}

// Notify implements the layered push strategy over the saved set:
// threshold suppression, top-K high-priority cards, medium summary, then the
// aggregate summary. Each pushed candidate's history count is incremented.
func (n *Notifier) Notify(ctx context.Context, candidates []domain.ScoredCandidate) (Result, error) {
	var res Result

	if n.cfg.WebhookURL == "" {
		lgr.Printf("[WARN] webhook not configured, notifications skipped")
		return res, nil
	}
	if len(candidates) == 0 {
		lgr.Printf("[INFO] nothing to notify")
		return res, nil
	}

	// drop candidates already surfaced at or above the threshold
	var eligible []domain.ScoredCandidate
	for i := range candidates {
		count, err := n.history.Count(ctx, candidates[i].URL)
		if err != nil {
			lgr.Printf("[WARN] history lookup failed for %s: %v", candidates[i].URL, err)
		}
		if count >= n.cfg.MaxNotifyCount {
			res.Suppressed++
			lgr.Printf("[DEBUG] suppressed %q, notified %d times already",
				truncate(candidates[i].Title, 50), count)
			continue
		}
		eligible = append(eligible, candidates[i])
	}
	if len(eligible) == 0 {
		lgr.Printf("[INFO] all %d candidates suppressed by notify threshold", res.Suppressed)
		return res, nil
	}

	// stable order: total score descending, input order breaks ties
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].TotalScore(n.weights) > eligible[j].TotalScore(n.weights)
	})

	var high, medium []domain.ScoredCandidate
	for i := range eligible {
		switch eligible[i].Priority(n.weights) {
		case domain.PriorityHigh:
			high = append(high, eligible[i])
		case domain.PriorityMedium:
			medium = append(medium, eligible[i])
		}
	}

	// individual cards for the top high-priority candidates
	cards := high
	if len(cards) > n.cfg.TopHighCards {
		cards = cards[:n.cfg.TopHighCards]
	}
	for i := range cards {
		if i > 0 {
			n.sleep(n.cfg.PushPause)
		}
		if err := n.send(ctx, n.buildCard(&cards[i])); err != nil {
			lgr.Printf("[WARN] card push failed for %q: %v", truncate(cards[i].Title, 50), err)
			continue
		}
		res.Cards++
		if _, err := n.history.Increment(ctx, cards[i].URL, cards[i].Title); err != nil {
			lgr.Printf("[WARN] history increment failed for %s: %v", cards[i].URL, err)
		}
	}

	// medium-priority digest
	if len(medium) > 0 {
		n.sleep(n.cfg.PushPause)
		if err := n.send(ctx, n.buildMediumSummary(medium)); err != nil {
			lgr.Printf("[WARN] medium summary push failed: %v", err)
		}
	}

	// aggregate summary over the full eligible set
	n.sleep(n.cfg.PushPause)
	if err := n.send(ctx, n.buildSummary(eligible, high, medium)); err != nil {
		lgr.Printf("[WARN] summary push failed: %v", err)
	} else {
		res.Summary = true
	}

	lgr.Printf("[INFO] notify done: %d cards, %d suppressed, summary=%v",
		res.Cards, res.Suppressed, res.Summary)
	return res, nil
}

// send posts one payload to the webhook, signing it when a secret is set
func (n *Notifier) send(ctx context.Context, payload map[string]any) error {
	if n.cfg.WebhookSecret != "" {
		ts := n.now().Unix()
		payload["timestamp"] = fmt.Sprintf("%d", ts)
		payload["sign"] = signature(ts, n.cfg.WebhookSecret)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(respBody, &result); err == nil && result.Code != 0 {
		return fmt.Errorf("webhook error code=%d msg=%s", result.Code, result.Msg)
	}
	return nil
}

// signature implements the platform's HMAC-SHA256 webhook signing:
// key = "timestamp\nsecret", empty message, base64 digest
func signature(timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(fmt.Sprintf("%d\n%s", timestamp, secret)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
