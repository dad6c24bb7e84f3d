// Package client 是看板服务的Go客户端
// HTTPClient负责轮询接口和推送连接，Watcher在推送中断时自动降级为轮询并定期重试推送
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales_dashboard/models"
	"sales_dashboard/services"
)

// HTTPError 服务端返回的非2xx响应
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Params 查询参数
type Params struct {
	DataTypes []models.EntityType
	DateRange string
	Limit     int
	Offset    int
}

// Dashboard 客户端视角的看板数据
// 未请求的实体为nil；失败的实体记录在Errors中
type Dashboard struct {
	Deals         []models.Deal
	Callbacks     []models.Callback
	Targets       []models.Target
	Notifications []models.Notification
	Analytics     *services.Analytics
	Errors        map[models.EntityType]models.PartialError
	PartialErrors []models.PartialError
}

// Degraded 是否有实体失败
func (d *Dashboard) Degraded() bool {
	return len(d.Errors) > 0 || len(d.PartialErrors) > 0
}

// fill 按实体类型解码记录
func (d *Dashboard) fill(entity models.EntityType, raw json.RawMessage) error {
	var target any
	switch entity {
	case models.EntityDeals:
		target = &d.Deals
	case models.EntityCallbacks:
		target = &d.Callbacks
	case models.EntityTargets:
		target = &d.Targets
	case models.EntityNotifications:
		target = &d.Notifications
	case models.EntityAnalytics:
		target = &d.Analytics
	default:
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("解码%s失败: %w", entity, err)
	}
	return nil
}

func (d *Dashboard) fail(pe models.PartialError) {
	if d.Errors == nil {
		d.Errors = make(map[models.EntityType]models.PartialError)
	}
	d.Errors[pe.Entity] = pe
}

// envelope 统一数据接口的响应
type envelope struct {
	Success  bool                       `json:"success"`
	Data     map[string]json.RawMessage `json:"data"`
	Error    string                     `json:"error"`
	Metadata struct {
		PartialErrors []models.PartialError `json:"partialErrors"`
	} `json:"metadata"`
}

// HTTPClient 看板服务客户端
type HTTPClient struct {
	baseURL      string
	token        string
	identity     *models.Requester
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
}

// NewHTTPClient 创建客户端，token为空时需要通过UseQueryIdentity指定身份
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		// 推送连接是长连接，不能沿用整体超时
		streamClient: &http.Client{Transport: httpClient.Transport},
		maxRetries:   3,
		baseDelay:    100 * time.Millisecond,
		maxDelay:     2 * time.Second,
	}
}

// UseQueryIdentity 以查询参数传递身份（服务端AUTH_MODE=query时）
func (c *HTTPClient) UseQueryIdentity(req models.Requester) {
	c.identity = &req
}

func (c *HTTPClient) query(p Params) url.Values {
	q := url.Values{}
	if len(p.DataTypes) > 0 {
		types := make([]string, 0, len(p.DataTypes))
		for _, t := range p.DataTypes {
			types = append(types, string(t))
		}
		q.Set("dataTypes", strings.Join(types, ","))
	}
	if p.DateRange != "" {
		q.Set("dateRange", p.DateRange)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if c.identity != nil {
		q.Set("userRole", string(c.identity.Role))
		q.Set("userId", c.identity.UserID)
		if c.identity.TeamID != "" {
			q.Set("managedTeam", c.identity.TeamID)
		}
	}
	return q
}

func (c *HTTPClient) newRequest(ctx context.Context, path string, q url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// FetchUnified 调用统一数据接口
// 429和5xx按退避重试；全部实体失败时返回*HTTPError
func (c *HTTPClient) FetchUnified(ctx context.Context, p Params) (*Dashboard, error) {
	q := c.query(p)
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, "/api/unified-data", q)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: env.Error}
		}
		return decodeEnvelope(env)
	}
}

func decodeEnvelope(env envelope) (*Dashboard, error) {
	d := &Dashboard{PartialErrors: env.Metadata.PartialErrors}
	for key, raw := range env.Data {
		if err := d.fill(models.EntityType(key), raw); err != nil {
			return nil, err
		}
	}
	for _, pe := range env.Metadata.PartialErrors {
		if !pe.Partial {
			d.fail(pe)
		}
	}
	return d, nil
}

func (c *HTTPClient) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
