package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchematicArchivesParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schematic_archives_parsed_total",
		Help: "Total number of schematic archives processed",
	}, []string{"result"})

	BOMPartsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bom_parts_extracted_total",
		Help: "Total number of orderable components extracted from schematics",
	})

	PartLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "part_lookups_total",
		Help: "Total number of part resolutions by outcome",
	}, []string{"outcome"})

	VendorQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vendor_query_latency_seconds",
		Help:    "Latency of vendor catalog queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"vendor"})

	VendorQueryFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_query_failures_total",
		Help: "Total number of failed vendor catalog queries",
	}, []string{"vendor"})

	LineItemsRetargetedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_line_items_retargeted_total",
		Help: "Total number of open-order line items moved to a newer vendor snapshot",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_archived_total",
		Help: "Total number of archived orders",
	})

	PriceNotFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_not_found_total",
		Help: "Total number of line items priced without a qualifying break",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
