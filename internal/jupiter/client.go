package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "SolTradeBot/internal/errors"
)

const (
	defaultBaseURL = "https://quote-api.jup.ag/v6"
	defaultTimeout = 10 * time.Second
)

// Config 描述了调用 Jupiter 聚合器 API 所需的信息。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 Jupiter 的报价与交易构建能力。两个调用都是
// 单次请求，不在本层重试；重试策略属于上层的用户操作。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Quote 是聚合器返回的一次报价。Raw 保留完整响应，构建交易时原样回传。
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

// SwapTransaction 是聚合器构建的未签名交易，已从 base64 解码。
type SwapTransaction struct {
	Bytes []byte
}

// NewClient 根据配置创建 Jupiter 客户端。
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetQuote 获取一次兑换报价。amount 必须是输入资产最小单位的正整数。
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int, traderAddress string) (*Quote, error) {
	if amount == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "报价数量必须为正整数")
	}

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	params.Set("onlyDirectRoutes", "true")
	if traderAddress != "" {
		params.Set("userPublicKey", traderAddress)
	}

	endpoint := c.baseURL + "/quote?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, "构建报价请求失败")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, "请求 Jupiter 报价失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable,
			fmt.Errorf("status %d: %s", resp.StatusCode, readErrorBody(resp.Body)),
			"Jupiter 报价返回错误状态")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, "读取报价响应失败")
	}

	quote, err := parseQuote(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, "解析报价响应失败")
	}
	return quote, nil
}

// BuildSwap 请求聚合器为报价构建未签名交易。
func (c *Client) BuildSwap(ctx context.Context, traderAddress string, quote *Quote) (*SwapTransaction, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少报价数据")
	}

	payload, err := json.Marshal(map[string]any{
		"userPublicKey":     traderAddress,
		"wrapAndUnwrapSol":  true,
		"useSharedAccounts": true,
		"quoteResponse":     quote.Raw,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "序列化交易构建请求失败")
	}

	endpoint := c.baseURL + "/swap"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "构建交易构建请求失败")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "请求 Jupiter 交易构建失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed,
			fmt.Errorf("status %d: %s", resp.StatusCode, readErrorBody(resp.Body)),
			"Jupiter 交易构建返回错误状态")
	}

	var decoded struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "解析交易构建响应失败")
	}
	if decoded.SwapTransaction == "" {
		return nil, xerrors.New(xerrors.CodeSwapBuildFailed, "响应中缺少 swapTransaction 字段")
	}

	rawTx, err := base64.StdEncoding.DecodeString(decoded.SwapTransaction)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSwapBuildFailed, err, "解码 swapTransaction 失败")
	}
	return &SwapTransaction{Bytes: rawTx}, nil
}

// parseQuote 提取报价中引擎关心的字段。Jupiter 以字符串编码金额。
func parseQuote(raw []byte) (*Quote, error) {
	var decoded struct {
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if decoded.OutAmount == "" {
		return nil, errors.New("响应中缺少 outAmount 字段")
	}
	inAmount, err := strconv.ParseUint(decoded.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("inAmount 非法: %w", err)
	}
	outAmount, err := strconv.ParseUint(decoded.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("outAmount 非法: %w", err)
	}
	return &Quote{
		InputMint:  decoded.InputMint,
		OutputMint: decoded.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Raw:        json.RawMessage(raw),
	}, nil
}

func readErrorBody(body io.Reader) string {
	content, _ := io.ReadAll(io.LimitReader(body, 2048))
	return strings.TrimSpace(string(content))
}
