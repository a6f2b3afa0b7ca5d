// Package tools holds the billing tool catalog and the dispatcher that maps
// tool calls onto upstream billing API requests.
package tools

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed by the catalog.
const (
	GetStats           = "billing_get_stats"
	ListClients        = "billing_list_clients"
	GetClient          = "billing_get_client"
	CreateClient       = "billing_create_client"
	ListProducts       = "billing_list_products"
	ListInvoices       = "billing_list_invoices"
	GetInvoice         = "billing_get_invoice"
	CreateInvoice      = "billing_create_invoice"
	CreateLineItem     = "billing_create_line_item"
	GetTopProducts     = "billing_get_top_products"
	DownloadInvoicePDF = "billing_download_invoice_pdf"
)

// route binds a catalog entry to its upstream call.
type route struct {
	tool     mcp.Tool
	method   string
	endpoint string
	newArgs  func() any
	// forward sends the whole argument map as the JSON request body.
	forward bool
	// download fetches endpoint as binary and writes it to output_path.
	download bool
}

func catalog() []route {
	return []route{
		{
			tool: mcp.NewTool(GetStats,
				mcp.WithDescription("Get the dashboard statistics for the billing system"),
			),
			method: http.MethodGet, endpoint: "/stats",
			newArgs: func() any { return &noArgs{} },
		},
		{
			tool: mcp.NewTool(ListClients,
				mcp.WithDescription("List all clients"),
			),
			method: http.MethodGet, endpoint: "/clients",
			newArgs: func() any { return &noArgs{} },
		},
		{
			tool: mcp.NewTool(GetClient,
				mcp.WithDescription("Get a specific client by ID"),
				mcp.WithString("id", mcp.Required()),
			),
			method: http.MethodGet, endpoint: "/clients/{id}",
			newArgs: func() any { return &idArgs{} },
		},
		{
			tool: mcp.NewTool(CreateClient,
				mcp.WithDescription("Create a new client"),
				mcp.WithString("name", mcp.Required()),
				mcp.WithString("email"),
				mcp.WithString("tax_id"),
			),
			method: http.MethodPost, endpoint: "/clients", forward: true,
			newArgs: func() any { return &createClientArgs{} },
		},
		{
			tool: mcp.NewTool(ListProducts,
				mcp.WithDescription("List all products"),
			),
			method: http.MethodGet, endpoint: "/products",
			newArgs: func() any { return &noArgs{} },
		},
		{
			tool: mcp.NewTool(ListInvoices,
				mcp.WithDescription("List all invoices"),
			),
			method: http.MethodGet, endpoint: "/invoices",
			newArgs: func() any { return &noArgs{} },
		},
		{
			tool: mcp.NewTool(GetInvoice,
				mcp.WithDescription("Get a specific invoice by ID"),
				mcp.WithString("id", mcp.Required()),
			),
			method: http.MethodGet, endpoint: "/invoices/{id}",
			newArgs: func() any { return &idArgs{} },
		},
		{
			tool: mcp.NewTool(CreateInvoice,
				mcp.WithDescription("Create a new invoice"),
				mcp.WithNumber("client_id", mcp.Required()),
				mcp.WithString("date", mcp.Required(), mcp.Description("YYYY-MM-DD")),
				mcp.WithString("due_date", mcp.Description("YYYY-MM-DD")),
				mcp.WithString("notes"),
			),
			method: http.MethodPost, endpoint: "/invoices", forward: true,
			newArgs: func() any { return &createInvoiceArgs{} },
		},
		{
			tool: mcp.NewTool(CreateLineItem,
				mcp.WithDescription("Add a line item to an invoice"),
				mcp.WithNumber("invoice_id", mcp.Required()),
				mcp.WithNumber("product_id"),
				mcp.WithString("description", mcp.Required()),
				mcp.WithNumber("quantity", mcp.Required()),
				mcp.WithNumber("unit_price", mcp.Required()),
				mcp.WithNumber("tax_rate"),
			),
			method: http.MethodPost, endpoint: "/line-items", forward: true,
			newArgs: func() any { return &createLineItemArgs{} },
		},
		{
			tool: mcp.NewTool(GetTopProducts,
				mcp.WithDescription("Get the most sold products"),
			),
			method: http.MethodGet, endpoint: "/reports/products",
			newArgs: func() any { return &noArgs{} },
		},
		{
			tool: mcp.NewTool(DownloadInvoicePDF,
				mcp.WithDescription("Download the PDF of an invoice to a specific path"),
				mcp.WithNumber("id", mcp.Required()),
				mcp.WithString("output_path", mcp.Required()),
			),
			method: http.MethodGet, endpoint: "/invoices/{id}/pdf", download: true,
			newArgs: func() any { return &downloadArgs{} },
		},
	}
}
