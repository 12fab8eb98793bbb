package bizapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetSalesReport возвращает отчет продаж за период.
//
// dateFrom/dateTo в формате YYYY-MM-DD. machineID пустой = все точки.
func (c *Client) GetSalesReport(ctx context.Context, dateFrom, dateTo, machineID string) (*SalesReport, error) {
	params := url.Values{}
	params.Set("date_from", dateFrom)
	params.Set("date_to", dateTo)
	if machineID != "" {
		params.Set("machine_id", machineID)
	}

	var resp apiResponse[SalesReport]
	if err := c.get(ctx, "get_sales_report", "/api/v1/reports/sales", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("sales report error: %s", resp.Error)
	}

	return &resp.Data, nil
}

// FindCustomers ищет клиентов по имени, компании или email.
func (c *Client) FindCustomers(ctx context.Context, query string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp apiResponse[[]Customer]
	if err := c.get(ctx, "find_customers", "/api/v1/customers/search", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("customer search error: %s", resp.Error)
	}

	return resp.Data, nil
}

// UpdateMachineStatus переводит точку в новый статус.
//
// Мутирующая операция: вызывается только после человеческого
// подтверждения через confirmation gate.
func (c *Client) UpdateMachineStatus(ctx context.Context, machineID, status, reason string) (*Machine, error) {
	body := map[string]string{
		"status": status,
		"reason": reason,
	}

	var resp apiResponse[Machine]
	path := fmt.Sprintf("/api/v1/machines/%s/status", url.PathEscape(machineID))
	if err := c.post(ctx, "update_machine_status", path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("machine status update error: %s", resp.Error)
	}

	return &resp.Data, nil
}

// SendQuote отправляет клиенту коммерческое предложение.
//
// Мутирующая операция: исходящее письмо клиенту, только после
// подтверждения.
func (c *Client) SendQuote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	var resp apiResponse[QuoteResult]
	if err := c.post(ctx, "send_quote", "/api/v1/quotes/send", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("send quote error: %s", resp.Error)
	}

	return &resp.Data, nil
}
