package service

import "strings"

// Cache keys. Every key embeds the tags that stale it, so tag-substring
// invalidation reaches it: "riders:S1" is hit by both "riders" and "S1".
const (
	keySupervisors = "supervisors"
	keySettings    = "settings"
)

func ridersKey(code string) string { return "riders:" + code }

func performanceKey(code, start, end string) string {
	return strings.Join([]string{"performance", code, start, end}, ":")
}

func debtsKey(code string) string { return "debts:" + code }

func advancesKey(code, start, end string) string {
	return strings.Join([]string{"advances", code, start, end}, ":")
}

func compensationKey(code string) string { return "compensation:" + code }
