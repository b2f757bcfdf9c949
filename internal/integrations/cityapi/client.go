package cityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parkfee-bot/internal/domain"
)

const (
	statusSuccess    = "SUCCESS"
	maxBodyBytes     = 1 << 20
	placeholderPlate = "{plate}"
	placeholderType  = "{type}"
)

// envelope is the response shape shared by every city's fee API.
type envelope struct {
	Status  string          `json:"Status"`
	Message string          `json:"Message"`
	Result  json.RawMessage `json:"Result"`
}

type feeResult struct {
	TotalCount  flexNumber     `json:"TotalCount"`
	TotalAmount flexNumber     `json:"TotalAmount"`
	Bills       []billJSON     `json:"Bills"`
	Reminders   []reminderJSON `json:"Reminders"`
}

type billJSON struct {
	ParkingDate  string     `json:"ParkingDate"`
	PayLimitDate string     `json:"PayLimitDate"`
	ParkingHours flexNumber `json:"ParkingHours"`
	Amount       flexNumber `json:"Amount"`
}

type reminderJSON struct {
	ReminderNo        flexString `json:"ReminderNo"`
	ReminderLimitDate string     `json:"ReminderLimitDate"`
	Amount            flexNumber `json:"Amount"`
	ExtraCharge       flexNumber `json:"ExtraCharge"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("cityapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client queries city parking-fee endpoints.
type Client struct {
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. Deadlines are expected on the context passed
// to Fetch; the default HTTP client only carries a safety timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

// BuildURL substitutes the path-escaped plate and the raw vehicle code into
// the endpoint template.
func BuildURL(template string, plate domain.Plate, vehicle domain.VehicleType) string {
	return strings.NewReplacer(
		placeholderPlate, url.PathEscape(plate.String()),
		placeholderType, vehicle.Code(),
	).Replace(template)
}

// Fetch queries one city and always returns a SourceResult; transport and
// parse problems become failure results.
func (c *Client) Fetch(ctx context.Context, endpoint domain.CityEndpoint, plate domain.Plate, vehicle domain.VehicleType) domain.SourceResult {
	target := BuildURL(endpoint.URLTemplate, plate, vehicle)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.FailureResult(domain.FailureOther, domain.ReasonOther)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.doRequest(req, target)
	if err != nil {
		return classify(ctx, err)
	}
	return decode(raw)
}

func (c *Client) doRequest(req *http.Request, target string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        target,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func classify(ctx context.Context, err error) domain.SourceResult {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return domain.FailureResult(domain.FailureHTTPStatus, domain.ReasonHTTPStatus(statusErr.StatusCode))
	}
	if isTimeout(ctx, err) {
		return domain.FailureResult(domain.FailureTimeout, domain.ReasonTimeout)
	}
	return domain.FailureResult(domain.FailureOther, domain.ReasonOther)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func decode(raw []byte) domain.SourceResult {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return domain.FailureResult(domain.FailureNonJSON, domain.ReasonNonJSON)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return domain.FailureResult(domain.FailureOther, domain.ReasonOther)
	}
	if env.Status != statusSuccess {
		return domain.FailureResult(domain.FailureUpstream, strings.TrimSpace(env.Status+" "+env.Message))
	}

	result := bytes.TrimSpace(env.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return domain.NoPendingFeesResult()
	}

	var fr feeResult
	if err := json.Unmarshal(result, &fr); err != nil {
		return domain.FailureResult(domain.FailureOther, domain.ReasonOther)
	}
	return domain.SuccessResult(fr.toSummary())
}

func (fr feeResult) toSummary() domain.BillSummary {
	s := domain.BillSummary{
		TotalCount:  int(fr.TotalCount),
		TotalAmount: float64(fr.TotalAmount),
		Bills:       make([]domain.Bill, 0, len(fr.Bills)),
		Reminders:   make([]domain.Reminder, 0, len(fr.Reminders)),
	}
	for _, b := range fr.Bills {
		s.Bills = append(s.Bills, domain.Bill{
			ParkingDate:  b.ParkingDate,
			PayLimitDate: b.PayLimitDate,
			ParkingHours: float64(b.ParkingHours),
			Amount:       float64(b.Amount),
		})
	}
	for _, r := range fr.Reminders {
		s.Reminders = append(s.Reminders, domain.Reminder{
			ReminderNo:        string(r.ReminderNo),
			ReminderLimitDate: r.ReminderLimitDate,
			Amount:            float64(r.Amount),
			ExtraCharge:       float64(r.ExtraCharge),
		})
	}
	return s
}

// flexNumber accepts a JSON number, a numeric string, an empty string or null.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cityapi: parse number %q: %w", s, err)
	}
	*n = flexNumber(v)
	return nil
}

// flexString accepts either a JSON string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}
