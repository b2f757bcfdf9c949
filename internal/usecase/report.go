package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"parkfee-bot/internal/domain"
)

const noPendingFeesText = "所有查詢城市皆無待繳停車費。"

// VehicleLabels maps vehicle types to the labels shown to users.
type VehicleLabels map[domain.VehicleType]string

// DefaultVehicleLabels are used for any type without a configured label.
var DefaultVehicleLabels = VehicleLabels{
	domain.VehicleCar:        "汽車",
	domain.VehicleMotorcycle: "機車",
}

func (l VehicleLabels) Label(v domain.VehicleType) string {
	if s, ok := l[v]; ok && strings.TrimSpace(s) != "" {
		return s
	}
	if s, ok := DefaultVehicleLabels[v]; ok {
		return s
	}
	return v.String()
}

type reportComposer struct {
	maxItems int
	labels   VehicleLabels
}

func (c reportComposer) compose(plate domain.Plate, vehicle domain.VehicleType, outcomes []domain.CityOutcome) domain.Report {
	report := domain.Report{
		Header:   fmt.Sprintf("車牌 %s（%s）停車費查詢結果", plate, c.labels.Label(vehicle)),
		Outcomes: outcomes,
	}

	allEmpty := true
	for _, o := range outcomes {
		switch {
		case o.Result.Kind == domain.ResultNoPendingFees:
			continue
		case o.Result.Kind == domain.ResultFailure && o.Result.FailureKind == domain.FailureUnsupported:
		default:
			allEmpty = false
		}
		report.Sections = append(report.Sections, c.section(o))
	}
	if allEmpty {
		report.Sections = []string{noPendingFeesText}
	}
	return report
}

func (c reportComposer) section(o domain.CityOutcome) string {
	title := "【" + o.CityName + "】"
	if o.Result.Kind == domain.ResultFailure {
		return title + "查詢失敗：" + o.Result.Reason
	}

	s := o.Result.Summary
	lines := []string{
		title,
		fmt.Sprintf("共 %d 筆，合計 %s 元", s.TotalCount, formatAmount(s.TotalAmount)),
	}
	if len(s.Bills) > 0 {
		lines = append(lines, "停車單：")
		for i, b := range s.Bills {
			if i >= c.maxItems {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. 停車日期 %s｜繳費期限 %s｜時數 %s｜金額 %s 元",
				i+1, orDash(b.ParkingDate), orDash(b.PayLimitDate), formatAmount(b.ParkingHours), formatAmount(b.Amount)))
		}
	}
	if len(s.Reminders) > 0 {
		lines = append(lines, "催繳單：")
		for i, r := range s.Reminders {
			if i >= c.maxItems {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. 催繳單號 %s｜繳費期限 %s｜金額 %s 元｜附加費用 %s 元",
				i+1, orDash(r.ReminderNo), orDash(r.ReminderLimitDate), formatAmount(r.Amount), formatAmount(r.ExtraCharge)))
		}
	}
	return strings.Join(lines, "\n")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
