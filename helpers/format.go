package helpers

import "fmt"

// FormatUSD formats a dollar amount with thousand separators
func FormatUSD(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	whole := int64(amount)
	cents := int64(amount*100+0.5) % 100

	// Add comma thousand separators to the whole part
	str := fmt.Sprintf("%d", whole)
	length := len(str)

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("$-%s.%02d", result, cents)
	}
	return fmt.Sprintf("$%s.%02d", result, cents)
}

// FormatOz formats a weight in ounces with one decimal place
func FormatOz(oz float64) string {
	return fmt.Sprintf("%.1f oz", oz)
}
