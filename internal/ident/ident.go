package ident

import (
	"fmt"
	"strings"
	"time"
)

const billDateLayout = "20060102"

// Slug lower-cases name and joins its whitespace-separated words with "-".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func BillPrefix(day time.Time) string {
	return "BILL-" + day.Format(billDateLayout)
}

func BillID(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%03d", BillPrefix(day), seq)
}
