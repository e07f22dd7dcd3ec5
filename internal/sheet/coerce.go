package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/fleetpay-go/internal/dateparse"
)

// Cells arrive untyped: strings from file exports and formatted reads,
// float64 from JSON gateways, time.Time from some SDKs. Every helper here
// tolerates all of them and never fails; bad input collapses to a zero value.

var digitFolder = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".", "٬", "",
)

var numberNoise = strings.NewReplacer(
	"%", "", ",", "", " ", "", " ", "",
	"SAR", "", "sar", "", "SR", "", "ر.س", "", "ريال", "",
)

// String renders a cell as trimmed text. Whole numbers print without a
// fractional part so numeric IDs survive ("1001", not "1001.000000").
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if d, ok := dateparse.Normalize(x); ok {
			return d
		}
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Float reads a numeric cell. Percent signs, thousands separators, currency
// words and Arabic-Indic digits are stripped first. Anything else is 0.
func Float(v any) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0
		}
		f = n
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		s := numberNoise.Replace(digitFolder.Replace(String(v)))
		if s == "" || s == "-" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// NonNegative is Float clamped at zero.
func NonNegative(v any) float64 {
	if f := Float(v); f > 0 {
		return f
	}
	return 0
}

// Int reads a whole, non-negative count.
func Int(v any) int {
	return int(math.Round(NonNegative(v)))
}

// Percent reads an acceptance-rate style cell ("97%", "97", 97) into [0, 100].
func Percent(v any) float64 {
	f := Float(v)
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	}
	return f
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
