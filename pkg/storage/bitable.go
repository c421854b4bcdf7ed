// Package storage implements the primary-with-fallback persistence layer:
// a collaborative spreadsheet (bitable) backend preferred, an embedded
// sqlite store catching everything the primary could not take.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
	"github.com/umputun/benchscope/pkg/urlutil"
)

// APIError is the typed error for spreadsheet backend failures, raised only
// after retries are exhausted
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("bitable %s: %v", e.Op, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }

// field display names, discovered columns must include the required set
const (
	fldTitle       = "Title"
	fldSource      = "Source"
	fldURL         = "URL"
	fldAbstract    = "Abstract"
	fldActivity    = "Activity"
	fldReproduce   = "Reproducibility"
	fldLicense     = "License Compliance"
	fldNovelty     = "Novelty"
	fldRelevance   = "Relevance"
	fldTotal       = "Total Score"
	fldPriority    = "Priority"
	fldReasoning   = "Reasoning"
	fldStatus      = "Status"
	fldPaperURL    = "Paper URL"
	fldStars       = "GitHub Stars"
	fldGitHubURL   = "GitHub URL"
	fldAuthors     = "Authors"
	fldPublishDate = "Publish Date"
	fldDatasetURL  = "Dataset URL"
	fldLicenseType = "License"
	fldTaskType    = "Task Type"
	fldTaskDomain  = "Task Domain"
	fldMetrics     = "Evaluation Metrics"
	fldInstitution = "Institution"
	fldImageKey    = "Image Key"
)

// requiredFields must exist in the table or every batch is a mapping error
var requiredFields = []string{
	fldTitle, fldSource, fldURL, fldActivity, fldReproduce, fldLicense,
	fldNovelty, fldRelevance, fldTotal, fldPriority,
}

const reasoningPreviewLen = 1500

// Bitable talks to the spreadsheet backend, owning the access-token
// lifecycle and the per-run field-name cache
type Bitable struct {
	cfg     config.StorageConfig
	weights domain.ScoreWeights
	client  *http.Client
	now     func() time.Time
	sleep   func(time.Duration)

	tokenMu  sync.Mutex // guards token refresh so concurrent callers don't each fetch
	token    string
	tokenExp time.Time

	fields map[string]bool // discovered column names, nil until first use
}

// NewBitable creates the spreadsheet store client
func NewBitable(cfg config.StorageConfig, weights domain.ScoreWeights) *Bitable {
	return &Bitable{
		cfg:     cfg,
		weights: weights,
		client:  &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// ExistingRecord is the slice of a stored row used for dedup decisions
type ExistingRecord struct {
	URLKey    string
	Source    domain.Source
	CreatedAt time.Time // zero when the backend didn't report it
}

// Save writes candidates in batches of cfg.BatchSize with cfg.BatchPause
// between batches, deduplicating against existing rows first. Returns the
// candidates actually written.
func (b *Bitable) Save(ctx context.Context, candidates []domain.ScoredCandidate) ([]domain.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := b.ensureFields(ctx); err != nil {
		return nil, err
	}

	existing, err := b.ExistingRecords(ctx)
	if err != nil {
		return nil, err
	}
	blocked := b.dedupKeys(existing)

	var toWrite []domain.ScoredCandidate
	skipped := 0
	for _, cand := range candidates {
		if blocked[urlutil.Canonicalize(cand.URL)] {
			skipped++
			continue
		}
		toWrite = append(toWrite, cand)
	}
	if skipped > 0 {
		lgr.Printf("[INFO] bitable dedup skipped %d already stored candidates", skipped)
	}
	if len(toWrite) == 0 {
		return nil, nil
	}

	var saved []domain.ScoredCandidate
	for start := 0; start < len(toWrite); start += b.cfg.BatchSize {
		if start > 0 {
			b.sleep(b.cfg.BatchPause) // platform allows 100 req/min
		}
		end := start + b.cfg.BatchSize
		if end > len(toWrite) {
			end = len(toWrite)
		}
		chunk := toWrite[start:end]

		if err := b.batchCreate(ctx, chunk); err != nil {
			// what was already written stays written; the caller diverts the
			// rest to the fallback store
			return saved, err
		}
		saved = append(saved, chunk...)
	}

	lgr.Printf("[INFO] bitable saved %d candidates (%d batches)",
		len(saved), (len(saved)+b.cfg.BatchSize-1)/b.cfg.BatchSize)
	return saved, nil
}

// dedupKeys marks canonical URLs whose existing row falls inside the
// per-source time window; rows without a timestamp block permanently
func (b *Bitable) dedupKeys(existing []ExistingRecord) map[string]bool {
	now := b.now().UTC()
	blocked := make(map[string]bool, len(existing))
	for _, rec := range existing {
		if rec.URLKey == "" {
			continue
		}
		window := b.cfg.DedupWindows.For(rec.Source)
		if rec.CreatedAt.IsZero() || now.Sub(rec.CreatedAt) <= window {
			blocked[rec.URLKey] = true
		}
	}
	return blocked
}

// batchCreate writes one chunk; request refreshes the token and retries
// whenever the backend reports it stale, within the retry attempts
func (b *Bitable) batchCreate(ctx context.Context, chunk []domain.ScoredCandidate) error {
	records := make([]map[string]any, 0, len(chunk))
	for i := range chunk {
		fields, err := b.toRecord(&chunk[i])
		if err != nil {
			return err
		}
		records = append(records, map[string]any{"fields": fields})
	}

	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records/batch_create",
		b.cfg.AppToken, b.cfg.TableID)
	payload, _ := json.Marshal(map[string]any{"records": records})

	var resp struct {
		Data struct {
			Records []json.RawMessage `json:"records"`
		} `json:"data"`
	}
	if err := b.request(ctx, http.MethodPost, path, nil, payload, &resp); err != nil {
		return err
	}

	if got := len(resp.Data.Records); got != len(records) {
		lgr.Printf("[WARN] bitable batch created %d of %d records", got, len(records))
	}
	return nil
}

// toRecord maps a candidate to spreadsheet fields, dropping optional columns
// the table doesn't have; a missing required column is a mapping error
func (b *Bitable) toRecord(cand *domain.ScoredCandidate) (map[string]any, error) {
	total := cand.TotalScore(b.weights)

	fields := map[string]any{
		fldTitle:     cand.Title,
		fldSource:    string(cand.Source),
		fldURL:       map[string]string{"link": cand.URL},
		fldAbstract:  truncateStr(cleanText(cand.Abstract), 2000),
		fldActivity:  cand.Activity,
		fldReproduce: cand.Reproducibility,
		fldLicense:   cand.License,
		fldNovelty:   cand.Novelty,
		fldRelevance: cand.Relevance,
		fldTotal:     round2(total),
		fldPriority:  string(domain.PriorityFor(total)),
		fldReasoning: truncateStr(cand.OverallReasoning, reasoningPreviewLen),
		fldStatus:    "new",
	}

	if cand.PaperURL != "" {
		fields[fldPaperURL] = map[string]string{"link": cand.PaperURL}
	}
	if cand.GitHubURL != "" {
		fields[fldGitHubURL] = map[string]string{"link": cand.GitHubURL}
		fields[fldStars] = cand.GitHubStars
	}
	if len(cand.Authors) > 0 {
		fields[fldAuthors] = truncateStr(strings.Join(cand.Authors, ", "), 200)
	}
	if !cand.PublishDate.IsZero() {
		fields[fldPublishDate] = cand.PublishDate.UnixMilli()
	}
	if cand.DatasetURL != "" {
		fields[fldDatasetURL] = map[string]string{"link": cand.DatasetURL}
	}
	if cand.LicenseType != "" {
		fields[fldLicenseType] = cand.LicenseType
	}
	if cand.TaskType != "" {
		fields[fldTaskType] = cand.TaskType
	}
	if cand.TaskDomain != "" {
		fields[fldTaskDomain] = cand.TaskDomain
	}
	if len(cand.Metrics) > 0 {
		fields[fldMetrics] = truncateStr(strings.Join(cand.Metrics, ", "), 200)
	}
	if cand.Institution != "" {
		fields[fldInstitution] = truncateStr(cand.Institution, 200)
	}
	if cand.HeroImageKey != "" {
		fields[fldImageKey] = cand.HeroImageKey
	}

	for name := range fields {
		if b.fields[name] {
			continue
		}
		if isRequiredField(name) {
			return nil, &APIError{Op: "map record", Err: fmt.Errorf("required column %q missing from table", name)}
		}
		delete(fields, name) // optional column absent, skip the value
	}

	return fields, nil
}

// ExistingRecords reads all stored rows with URL, source and creation time
func (b *Bitable) ExistingRecords(ctx context.Context) ([]ExistingRecord, error) {
	if err := b.ensureFields(ctx); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records", b.cfg.AppToken, b.cfg.TableID)

	var records []ExistingRecord
	pageToken := ""
	for page := 0; page < 100; page++ {
		params := url.Values{"page_size": {"500"}}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		var resp struct {
			Data struct {
				Items []struct {
					CreatedTime int64          `json:"created_time"`
					Fields      map[string]any `json:"fields"`
				} `json:"items"`
				HasMore   bool   `json:"has_more"`
				PageToken string `json:"page_token"`
			} `json:"data"`
		}
		if err := b.request(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Data.Items {
			rec := ExistingRecord{
				URLKey: urlutil.Canonicalize(linkValue(item.Fields[fldURL])),
				Source: domain.Source(strings.ToLower(stringField(item.Fields[fldSource]))),
			}
			if item.CreatedTime > 0 {
				rec.CreatedAt = time.UnixMilli(item.CreatedTime).UTC()
			}
			if rec.URLKey != "" {
				records = append(records, rec)
			}
		}

		if !resp.Data.HasMore || resp.Data.PageToken == "" {
			break
		}
		pageToken = resp.Data.PageToken
	}

	lgr.Printf("[DEBUG] bitable has %d existing records", len(records))
	return records, nil
}

// ensureFields discovers column names once per run, through the retry helper.
// A transient failure here must not kill the pipeline, the typed error lets
// the manager divert to the fallback store.
func (b *Bitable) ensureFields(ctx context.Context) error {
	if b.fields != nil {
		return nil
	}

	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/fields", b.cfg.AppToken, b.cfg.TableID)
	names := map[string]bool{}

	pageToken := ""
	for page := 0; page < 100; page++ {
		params := url.Values{"page_size": {"500"}}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		var resp struct {
			Data struct {
				Items []struct {
					FieldName string `json:"field_name"`
				} `json:"items"`
				HasMore   bool   `json:"has_more"`
				PageToken string `json:"page_token"`
			} `json:"data"`
		}
		if err := b.request(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
			return err
		}

		added := 0
		for _, item := range resp.Data.Items {
			if item.FieldName != "" && !names[item.FieldName] {
				names[item.FieldName] = true
				added++
			}
		}

		if !resp.Data.HasMore || resp.Data.PageToken == "" || added == 0 {
			break
		}
		pageToken = resp.Data.PageToken
	}

	b.fields = names
	lgr.Printf("[DEBUG] bitable field cache loaded, %d columns", len(names))
	return nil
}

// ensureToken fetches the tenant access token, cached until 5 minutes before
// expiry; the mutex keeps concurrent refreshes from double-fetching
func (b *Bitable) ensureToken(ctx context.Context) (string, error) {
	b.tokenMu.Lock()
	defer b.tokenMu.Unlock()

	if b.token != "" && b.now().Before(b.tokenExp) {
		return b.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"app_id":     b.cfg.AppID,
		"app_secret": b.cfg.AppSecret,
	})

	var resp struct {
		Code   int    `json:"code"`
		Msg    string `json:"msg"`
		Token  string `json:"tenant_access_token"`
		Expire int    `json:"expire"`
	}
	err := b.doRetried(ctx, func() error {
		return b.rawRequest(ctx, http.MethodPost, "/auth/v3/tenant_access_token/internal", nil, payload, "", &resp)
	})
	if err != nil {
		return "", &APIError{Op: "token fetch", Err: err}
	}
	if resp.Code != 0 || resp.Token == "" {
		return "", &APIError{Op: "token fetch", Err: fmt.Errorf("code=%d msg=%s", resp.Code, resp.Msg)}
	}

	b.token = resp.Token
	expire := resp.Expire
	if expire == 0 {
		expire = 7200
	}
	b.tokenExp = b.now().Add(time.Duration(expire-300) * time.Second)
	lgr.Printf("[DEBUG] bitable access token refreshed, expires in %ds", expire)
	return b.token, nil
}

// request wraps an authenticated call in the retry helper and checks the
// platform business code. A token-invalid business code drops the cached
// token and fetches a fresh one before the next retry attempt, so a
// mid-batch expiry recovers without diverting the save to the fallback.
func (b *Bitable) request(ctx context.Context, method, path string, params url.Values, payload []byte, out any) error {
	token, err := b.ensureToken(ctx)
	if err != nil {
		return err
	}

	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}

	err = b.doRetried(ctx, func() error {
		body, rerr := b.httpDo(ctx, method, path, params, payload, token)
		if rerr != nil {
			return rerr
		}
		if jerr := json.Unmarshal(body, &envelope); jerr != nil {
			return fmt.Errorf("decode response: %w", jerr)
		}
		if envelope.Code != 0 {
			if isStaleTokenCode(envelope.Code) {
				lgr.Printf("[WARN] bitable access token rejected (code=%d), refreshing", envelope.Code)
				b.invalidateToken()
				fresh, terr := b.ensureToken(ctx)
				if terr != nil {
					return terr
				}
				token = fresh
				return fmt.Errorf("stale access token code=%d msg=%s", envelope.Code, envelope.Msg)
			}
			return fmt.Errorf("platform error code=%d msg=%s", envelope.Code, envelope.Msg)
		}
		if out != nil {
			if jerr := json.Unmarshal(body, out); jerr != nil {
				return fmt.Errorf("decode payload: %w", jerr)
			}
		}
		return nil
	})
	if err != nil {
		return &APIError{Op: method + " " + path, Err: err}
	}
	return nil
}

// invalidateToken drops the cached token so the next ensureToken fetches
func (b *Bitable) invalidateToken() {
	b.tokenMu.Lock()
	b.token = ""
	b.tokenExp = time.Time{}
	b.tokenMu.Unlock()
}

// isStaleTokenCode recognizes the platform's token-invalid business codes
func isStaleTokenCode(code int) bool {
	switch code {
	case 99991661, 99991663, 99991664, 99991668:
		return true
	}
	return false
}

// rawRequest performs one call without the business-code check, for the
// token endpoint which reports its code inline
func (b *Bitable) rawRequest(ctx context.Context, method, path string, params url.Values, payload []byte, token string, out any) error {
	body, err := b.httpDo(ctx, method, path, params, payload, token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *Bitable) httpDo(ctx context.Context, method, path string, params url.Values, payload []byte, token string) ([]byte, error) {
	fullURL := strings.TrimRight(b.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return body, nil
}

// doRetried runs fn up to 3 times with exponential backoff from 1.5s
func (b *Bitable) doRetried(ctx context.Context, fn func() error) error {
	retrier := repeater.NewBackoff(3, 1500*time.Millisecond, repeater.WithMaxDelay(30*time.Second))
	return retrier.Do(ctx, fn)
}

func isRequiredField(name string) bool {
	for _, f := range requiredFields {
		if f == name {
			return true
		}
	}
	return false
}

func linkValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		if link, ok := val["link"].(string); ok {
			return link
		}
	case string:
		return val
	}
	return ""
}

func stringField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// cleanText flattens whitespace and strips markdown noise for table display
func cleanText(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "**", "", "__", "", "##", "", "```", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
