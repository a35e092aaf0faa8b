package query

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
)

// AnalyticsQuery задаёт рамки отчёта по заказам.
type AnalyticsQuery struct {
	RestaurantID string
	From         time.Time
	To           time.Time
}

// DailyStat — агрегаты за один календарный день (UTC).
type DailyStat struct {
	Day     string
	Orders  int
	Revenue decimal.Decimal
}

// Analytics — агрегированный отчёт по заказам за период.
// Revenue считается только по заказам, дошедшим до клиента.
type Analytics struct {
	TotalOrders       int
	DeliveredOrders   int
	CancelledOrders   int
	TotalRevenue      decimal.Decimal
	AverageOrderValue decimal.Decimal
	StatusCounts      map[domain.OrderStatus]int
	Daily             []DailyStat
}

// GetAnalytics строит отчёт по заказам. Ресторан видит только свои
// заказы, администратор — любые.
func (s *Service) GetAnalytics(ctx context.Context, actor domain.Actor, q AnalyticsQuery) (Analytics, error) {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
	case domain.RoleRestaurant:
		q.RestaurantID = actor.ID
	default:
		return Analytics{}, domain.ErrNotAuthorized
	}

	orders, _, err := s.orders.List(domain.OrderFilter{
		RestaurantID: q.RestaurantID,
		CreatedFrom:  q.From,
		CreatedTo:    q.To,
	})
	if err != nil {
		return Analytics{}, err
	}

	report := Analytics{
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		StatusCounts:      make(map[domain.OrderStatus]int),
	}
	daily := make(map[string]*DailyStat)

	for _, order := range orders {
		report.TotalOrders++
		report.StatusCounts[order.Status]++

		day := order.CreatedAt.UTC().Format("2006-01-02")
		stat, ok := daily[day]
		if !ok {
			stat = &DailyStat{Day: day, Revenue: decimal.Zero}
			daily[day] = stat
		}
		stat.Orders++

		switch order.Status {
		case domain.OrderStatusDelivered:
			report.DeliveredOrders++
			report.TotalRevenue = report.TotalRevenue.Add(order.GrandTotal())
			stat.Revenue = stat.Revenue.Add(order.GrandTotal())
		case domain.OrderStatusCancelled, domain.OrderStatusFailed, domain.OrderStatusRefunded:
			report.CancelledOrders++
		}
	}

	if report.DeliveredOrders > 0 {
		report.AverageOrderValue = report.TotalRevenue.
			Div(decimal.NewFromInt(int64(report.DeliveredOrders))).
			Round(2)
	}

	report.Daily = make([]DailyStat, 0, len(daily))
	for _, stat := range daily {
		report.Daily = append(report.Daily, *stat)
	}
	sort.Slice(report.Daily, func(i, j int) bool {
		return report.Daily[i].Day < report.Daily[j].Day
	})

	return report, nil
}
