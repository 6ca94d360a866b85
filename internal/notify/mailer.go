package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	subscriptiondomain "github.com/KeyT9999/keyt-shop-backend/internal/subscription/domain"
	"go.uber.org/zap"
)

// DigestStats is the daily operator summary.
type DigestStats struct {
	Date            string
	NewOrders       int64
	PaidOrders      int64
	CompletedOrders int64
	CancelledOrders int64
	Revenue         int64
}

// Mailer renders storefront messages and hands them to the provider.
// Every method returns the raw send error; callers log and continue, a
// failed email never fails the transition that triggered it.
type Mailer struct {
	provider Provider
	log      *zap.Logger

	operatorEmail string
	frontendURL   string
}

func NewMailer(provider Provider, log *zap.Logger, operatorEmail, frontendURL string) *Mailer {
	return &Mailer{
		provider:      provider,
		log:           log.Named("notify.mailer"),
		operatorEmail: operatorEmail,
		frontendURL:   frontendURL,
	}
}

func (m *Mailer) sendToCustomer(ctx context.Context, order *orderdomain.Order, subject, body string) error {
	to := strings.TrimSpace(order.CustomerEmail)
	if to == "" {
		return nil
	}
	return m.provider.Send(ctx, []string{to}, subject, body)
}

func (m *Mailer) sendToOperator(ctx context.Context, subject, body string) error {
	if m.operatorEmail == "" {
		return nil
	}
	return m.provider.Send(ctx, []string{m.operatorEmail}, subject, body)
}

func (m *Mailer) orderURL(order *orderdomain.Order) string {
	return fmt.Sprintf("%s/orders/%d", m.frontendURL, order.ID)
}

func itemLines(order *orderdomain.Order) string {
	var b strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%s x%d</li>", item.ProductName, item.Quantity)
	}
	return b.String()
}

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%d %s", amount, currency)
}

func (m *Mailer) OrderCreated(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Đã nhận đơn hàng #%06d", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Chúng tôi đã nhận đơn hàng <b>#%06d</b> của bạn.</p>
		<ul>%s</ul>
		<p>Tổng tiền: <b>%s</b></p>
		<p>Vui lòng thanh toán để đơn hàng được xử lý: <a href="%s">xem đơn hàng</a></p>`,
		order.CustomerName, order.Code, itemLines(order),
		formatAmount(order.TotalAmount, order.Currency), m.orderURL(order),
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) OrderCreatedOperator(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Đơn hàng mới #%06d", order.Code)
	body := fmt.Sprintf(
		`<p>Đơn hàng mới từ %s (%s).</p>
		<ul>%s</ul>
		<p>Tổng tiền: %s</p>`,
		order.CustomerName, order.CustomerEmail, itemLines(order),
		formatAmount(order.TotalAmount, order.Currency),
	)
	return m.sendToOperator(ctx, subject, body)
}

func (m *Mailer) PaymentReminder(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Nhắc thanh toán đơn hàng #%06d", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Đơn hàng <b>#%06d</b> của bạn vẫn chưa được thanh toán.</p>
		<p>Đơn hàng sẽ tự động hủy nếu không thanh toán trong vòng vài giờ tới.</p>
		<p><a href="%s">Thanh toán ngay</a></p>`,
		order.CustomerName, order.Code, m.orderURL(order),
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) PaymentSuccess(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Thanh toán thành công đơn hàng #%06d", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Chúng tôi đã nhận thanh toán <b>%s</b> cho đơn hàng <b>#%06d</b>.</p>
		<p>Đơn hàng đang được xử lý, bạn sẽ nhận được thông tin dịch vụ sớm nhất.</p>`,
		order.CustomerName, formatAmount(order.TotalAmount, order.Currency), order.Code,
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) PaymentFailed(ctx context.Context, order *orderdomain.Order, reason string) error {
	subject := fmt.Sprintf("Thanh toán thất bại đơn hàng #%06d", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Thanh toán cho đơn hàng <b>#%06d</b> không thành công (%s).</p>
		<p>Bạn có thể thử lại tại <a href="%s">trang đơn hàng</a>.</p>`,
		order.CustomerName, order.Code, reason, m.orderURL(order),
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) OrderPaidOperator(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Đơn hàng #%06d đã thanh toán", order.Code)
	body := fmt.Sprintf(
		`<p>Đơn hàng #%06d của %s (%s) đã thanh toán %s.</p>
		<ul>%s</ul>`,
		order.Code, order.CustomerName, order.CustomerEmail,
		formatAmount(order.TotalAmount, order.Currency), itemLines(order),
	)
	return m.sendToOperator(ctx, subject, body)
}

func (m *Mailer) OrderConfirmed(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Đơn hàng #%06d đã được xác nhận", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Đơn hàng <b>#%06d</b> đã được xác nhận và sẽ sớm được xử lý.</p>`,
		order.CustomerName, order.Code,
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) OrderProcessing(ctx context.Context, order *orderdomain.Order) error {
	subject := fmt.Sprintf("Đơn hàng #%06d đang được xử lý", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Đơn hàng <b>#%06d</b> đang được xử lý.</p>`,
		order.CustomerName, order.Code,
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

// OrderCompleted includes delivered credentials and any completion
// instructions collected across the order's items.
func (m *Mailer) OrderCompleted(ctx context.Context, order *orderdomain.Order, instructions []string) error {
	var accounts strings.Builder
	for _, item := range order.Items {
		if item.DeliveredAccount == nil {
			continue
		}
		fmt.Fprintf(&accounts, "<li>%s: <code>%s</code></li>", item.ProductName, *item.DeliveredAccount)
	}

	var guide strings.Builder
	for _, ins := range instructions {
		fmt.Fprintf(&guide, "<p>%s</p>", ins)
	}

	subject := fmt.Sprintf("Đơn hàng #%06d đã hoàn tất", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Đơn hàng <b>#%06d</b> đã hoàn tất. Cảm ơn bạn đã mua hàng!</p>
		<ul>%s</ul>
		%s`,
		order.CustomerName, order.Code, accounts.String(), guide.String(),
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) OrderCancelled(ctx context.Context, order *orderdomain.Order, reason string) error {
	subject := fmt.Sprintf("Đơn hàng #%06d đã bị hủy", order.Code)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Đơn hàng <b>#%06d</b> đã bị hủy: %s.</p>`,
		order.CustomerName, order.Code, reason,
	)
	return m.sendToCustomer(ctx, order, subject, body)
}

func (m *Mailer) PendingOrderNudge(ctx context.Context, order *orderdomain.Order, age time.Duration) error {
	subject := fmt.Sprintf("Đơn hàng #%06d chờ xác nhận quá lâu", order.Code)
	body := fmt.Sprintf(
		`<p>Đơn hàng #%06d của %s đã chờ xác nhận %.0f giờ.</p>
		<p>Trạng thái thanh toán: %s.</p>`,
		order.Code, order.CustomerName, age.Hours(), order.PaymentStatus,
	)
	return m.sendToOperator(ctx, subject, body)
}

func (m *Mailer) DailySummary(ctx context.Context, stats DigestStats, attention []orderdomain.Order) error {
	var rows strings.Builder
	for _, order := range attention {
		fmt.Fprintf(&rows, "<li>#%06d - %s - %s/%s</li>",
			order.Code, order.CustomerName, order.OrderStatus, order.PaymentStatus)
	}

	subject := fmt.Sprintf("Báo cáo đơn hàng ngày %s", stats.Date)
	body := fmt.Sprintf(
		`<p>Đơn mới: %d | Đã thanh toán: %d | Hoàn tất: %d | Đã hủy: %d</p>
		<p>Doanh thu: %d VND</p>
		<p>Đơn cần chú ý:</p>
		<ul>%s</ul>`,
		stats.NewOrders, stats.PaidOrders, stats.CompletedOrders, stats.CancelledOrders,
		stats.Revenue, rows.String(),
	)
	return m.sendToOperator(ctx, subject, body)
}

func (m *Mailer) SubscriptionExpiring(ctx context.Context, sub subscriptiondomain.Subscription) error {
	subject := fmt.Sprintf("Dịch vụ %s sắp hết hạn", sub.ServiceName)
	body := fmt.Sprintf(
		`<p>Chào %s,</p>
		<p>Dịch vụ <b>%s</b> của bạn sẽ hết hạn vào ngày %s.</p>
		<p>Vui lòng gia hạn để không bị gián đoạn.</p>`,
		sub.CustomerName, sub.ServiceName, sub.EndAt.Format("02/01/2006"),
	)
	if strings.TrimSpace(sub.CustomerEmail) == "" {
		return nil
	}
	return m.provider.Send(ctx, []string{sub.CustomerEmail}, subject, body)
}

func (m *Mailer) SubscriptionExpiryDigest(ctx context.Context, title string, subs []subscriptiondomain.Subscription) error {
	if len(subs) == 0 {
		return nil
	}

	var rows strings.Builder
	for _, sub := range subs {
		fmt.Fprintf(&rows, "<li>%s - %s - hết hạn %s</li>",
			sub.ServiceName, sub.CustomerEmail, sub.EndAt.Format("02/01/2006"))
	}
	body := fmt.Sprintf(`<p>%s</p><ul>%s</ul>`, title, rows.String())
	return m.sendToOperator(ctx, title, body)
}
