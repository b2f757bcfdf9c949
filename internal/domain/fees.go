package domain

import (
	"fmt"
	"strings"
)

// CityEndpoint is one upstream parking-fee API keyed by city.
// URLTemplate contains the {plate} and {type} placeholders.
type CityEndpoint struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	URLTemplate string `yaml:"url" json:"url"`
}

// DisplayName falls back to the ID when no name is configured.
func (c CityEndpoint) DisplayName() string {
	if strings.TrimSpace(c.Name) == "" {
		return c.ID
	}
	return c.Name
}

// Bill is one unpaid parking bill.
type Bill struct {
	ParkingDate  string
	PayLimitDate string
	ParkingHours float64
	Amount       float64
}

// Reminder is one overdue payment reminder.
type Reminder struct {
	ReminderNo        string
	ReminderLimitDate string
	Amount            float64
	ExtraCharge       float64
}

// BillSummary is the normalized payload of a successful city query.
type BillSummary struct {
	TotalCount  int
	TotalAmount float64
	Bills       []Bill
	Reminders   []Reminder
}

// ResultKind tags the SourceResult variant.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultNoPendingFees
	ResultFailure
)

// FailureKind classifies why a city query failed.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureTimeout     FailureKind = "timeout"
	FailureHTTPStatus  FailureKind = "http_status"
	FailureNonJSON     FailureKind = "non_json"
	FailureUpstream    FailureKind = "upstream_status"
	FailureUnsupported FailureKind = "unsupported_city"
	FailureOther       FailureKind = "other"
)

// User-facing failure texts, one per failure class.
const (
	ReasonTimeout     = "查詢逾時，請稍後再試"
	ReasonNonJSON     = "服務回應格式錯誤"
	ReasonOther       = "查詢發生錯誤，請稍後再試"
	ReasonUnsupported = "尚未支援此城市"
)

// ReasonHTTPStatus is the failure text for a non-2xx upstream response.
func ReasonHTTPStatus(code int) string {
	return fmt.Sprintf("服務暫時無法使用（HTTP %d）", code)
}

// SourceResult is the outcome of one city query.
type SourceResult struct {
	Kind        ResultKind
	Summary     BillSummary
	FailureKind FailureKind
	Reason      string
}

func SuccessResult(s BillSummary) SourceResult {
	return SourceResult{Kind: ResultSuccess, Summary: s}
}

func NoPendingFeesResult() SourceResult {
	return SourceResult{Kind: ResultNoPendingFees}
}

func FailureResult(kind FailureKind, reason string) SourceResult {
	return SourceResult{Kind: ResultFailure, FailureKind: kind, Reason: reason}
}

// CityOutcome pairs a requested city with its result.
type CityOutcome struct {
	CityID   string
	CityName string
	Result   SourceResult
}

// Report is the consolidated answer for one query round.
type Report struct {
	Header   string
	Sections []string
	Outcomes []CityOutcome
}

// Text renders the header followed by each section separated by a blank line.
func (r Report) Text() string {
	parts := make([]string, 0, len(r.Sections)+1)
	parts = append(parts, r.Header)
	parts = append(parts, r.Sections...)
	return strings.Join(parts, "\n\n")
}
