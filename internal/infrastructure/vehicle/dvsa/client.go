package dvsa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://driver-vehicle-licensing.api.gov.uk"

// Client はDVSA Vehicle Enquiry Serviceのクライアント。
// 取得した車両情報はAI生成リクエストのvehicleDataコンテキストとして使う
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient は新しいClientを作成
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBaseURL はベースURLを設定（テスト用）
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Available はAPIキーが構成済みかを返す
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Lookup は登録番号から車両情報を取得
func (c *Client) Lookup(ctx context.Context, registration string) (map[string]interface{}, error) {
	if !c.Available() {
		return nil, fmt.Errorf("dvsa client not initialized - API key missing")
	}

	registration = strings.ToUpper(strings.ReplaceAll(registration, " ", ""))
	if registration == "" {
		return nil, fmt.Errorf("registration number is required")
	}

	reqBody, err := json.Marshal(map[string]string{
		"registrationNumber": registration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/vehicle-enquiry/v1/vehicles", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dvsa API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var vehicle map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&vehicle); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return vehicle, nil
}
