package amocrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/phone"

	"golang.org/x/time/rate"
)

const (
	pageLimit = 250
	// Hard stop for runaway pagination on pathological filters.
	maxPages = 100
	// Backoff applied when the CRM answers 429.
	rateLimitBackoff = 60 * time.Second
)

// ErrUnauthorized is returned when the CRM rejects the access token.
// It is permanent: retrying the same page cannot succeed.
var ErrUnauthorized = errors.New("amocrm: invalid access token")

// Client is a read-only AmoCRM v4 API client. Requests are paced with a
// rate limiter (one page every 500ms) to respect upstream limits.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates an AmoCRM client from configuration.
func NewClient(cfg config.AmoCRMConfig, log *logger.Logger) *Client {
	timeout := cfg.GetAmoCRMTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: fmt.Sprintf("https://%s.amocrm.ru/api/v4", cfg.GetAmoCRMDomain()),
		token:   cfg.GetAmoCRMAccessToken(),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:     log,
	}
}

// SalesFilter bounds a ListSales query. Zero time bounds mean unbounded.
type SalesFilter struct {
	PipelineIDs []int64
	StatusID    int64
	ClosedFrom  time.Time
	ClosedTo    time.Time
}

type leadsPage struct {
	Embedded struct {
		Leads []Deal `json:"leads"`
	} `json:"_embedded"`
}

type contactsPage struct {
	Embedded struct {
		Contacts []Contact `json:"contacts"`
	} `json:"_embedded"`
}

// ListSales pages through all deals matching the filter. A 429 answer backs
// off and retries the same page; any other error abandons that page and
// returns what was fetched so far together with the error. Cancellation is
// checked between pages.
func (c *Client) ListSales(ctx context.Context, filter SalesFilter) ([]Deal, error) {
	all := make([]Deal, 0, pageLimit)

	for page := 1; ; page++ {
		if page > maxPages {
			c.log.Warn("amocrm: reached page safety limit, stopping", "pages", maxPages, "fetched", len(all))
			return all, nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}

		params := salesParams(filter, page)
		var result leadsPage
		status, err := c.get(ctx, "/leads", params, &result)
		if err != nil {
			if status == http.StatusTooManyRequests {
				c.log.Warn("amocrm: rate limited, backing off", "page", page, "backoff", rateLimitBackoff.String())
				if err := sleepCtx(ctx, rateLimitBackoff); err != nil {
					return all, err
				}
				page-- // retry the same page
				continue
			}
			return all, err
		}

		leads := result.Embedded.Leads
		if len(leads) == 0 {
			return all, nil
		}

		all = append(all, leads...)
		c.log.Info("amocrm: page fetched", "page", page, "leads", len(leads), "total", len(all))

		if len(leads) < pageLimit {
			return all, nil
		}
	}
}

// FindDealsByPhone recovers all deals belonging to the customer with the
// given phone number: contacts are searched by the bare digit string, then
// the linked deals are fetched with their contacts and custom fields.
func (c *Client) FindDealsByPhone(ctx context.Context, rawPhone string) ([]Deal, error) {
	digits := phone.Digits(rawPhone)
	if digits == "" {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contactParams := url.Values{}
	contactParams.Set("query", digits)
	contactParams.Set("with", "leads")

	var contacts contactsPage
	if _, err := c.get(ctx, "/contacts", contactParams, &contacts); err != nil {
		return nil, fmt.Errorf("search contacts by phone: %w", err)
	}

	var dealIDs []int64
	for _, contact := range contacts.Embedded.Contacts {
		if contact.Embedded == nil {
			continue
		}
		for _, ref := range contact.Embedded.Leads {
			dealIDs = append(dealIDs, ref.ID)
		}
	}
	if len(dealIDs) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	leadParams := url.Values{}
	leadParams.Set("filter[id]", joinIDs(dealIDs))
	leadParams.Set("with", "contacts")

	var leads leadsPage
	if _, err := c.get(ctx, "/leads", leadParams, &leads); err != nil {
		return nil, fmt.Errorf("fetch deals for contacts: %w", err)
	}

	return leads.Embedded.Leads, nil
}

// get performs an authenticated GET and decodes the JSON body into dest.
// It returns the HTTP status code alongside any error so callers can pick
// a retry strategy per status.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest interface{}) (int, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("amocrm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.log.CRMRequest(endpoint, pageFromParams(params), resp.StatusCode, float64(time.Since(start).Milliseconds()))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, ErrUnauthorized
	case resp.StatusCode == http.StatusNoContent:
		return resp.StatusCode, nil
	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("amocrm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode amocrm response: %w", err)
	}
	return resp.StatusCode, nil
}

func salesParams(filter SalesFilter, page int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("with", "contacts")

	for i, pipelineID := range filter.PipelineIDs {
		params.Set(fmt.Sprintf("filter[pipeline_id][%d]", i), strconv.FormatInt(pipelineID, 10))
		if filter.StatusID != 0 {
			params.Set(fmt.Sprintf("filter[statuses][%d][pipeline_id]", i), strconv.FormatInt(pipelineID, 10))
			params.Set(fmt.Sprintf("filter[statuses][%d][status_id]", i), strconv.FormatInt(filter.StatusID, 10))
		}
	}
	if !filter.ClosedFrom.IsZero() {
		params.Set("filter[closed_at][from]", strconv.FormatInt(filter.ClosedFrom.Unix(), 10))
	}
	if !filter.ClosedTo.IsZero() {
		params.Set("filter[closed_at][to]", strconv.FormatInt(filter.ClosedTo.Unix(), 10))
	}
	return params
}

func pageFromParams(params url.Values) int {
	page, _ := strconv.Atoi(params.Get("page"))
	return page
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
