package fulfillment

import (
	"testing"
	"time"

	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/stretchr/testify/assert"
)

func TestEntitlementEnd(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		productName  string
		billingCycle string
		want         time.Time
		parsed       bool
	}{
		{"vietnamese year", "Canva Pro 1 Năm", "", start.AddDate(1, 0, 0), true},
		{"vietnamese months", "Netflix Premium 3 tháng", "", start.AddDate(0, 3, 0), true},
		{"vietnamese days", "VPN dùng thử 30 ngày", "", start.AddDate(0, 0, 30), true},
		{"english year", "Office 365 - 2 years", "", start.AddDate(2, 0, 0), true},
		{"english month no space", "Spotify 6month", "", start.AddDate(0, 6, 0), true},
		{"falls back to billing cycle", "Tài khoản học tập", "12 tháng", start.AddDate(0, 12, 0), true},
		{"name wins over cycle", "Gói 1 năm", "3 tháng", start.AddDate(1, 0, 0), true},
		{"unparseable defaults to a year", "Tài khoản premium", "", start.AddDate(1, 0, 0), false},
		{"zero count is not a duration", "Gói 0 năm", "", start.AddDate(1, 0, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, parsed := entitlementEnd(start, tc.productName, tc.billingCycle)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.parsed, parsed)
		})
	}
}

func TestCompletionInstructionsDeduplicates(t *testing.T) {
	order := &orderdomain.Order{}
	for _, ins := range []string{"đổi mật khẩu", "", "đổi mật khẩu", "giữ nguyên hồ sơ"} {
		order.Items = append(order.Items, orderdomain.OrderItem{CompletionInstructions: ins})
	}

	got := CompletionInstructions(order)
	assert.Equal(t, []string{"đổi mật khẩu", "giữ nguyên hồ sơ"}, got)
}
