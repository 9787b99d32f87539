// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package power

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all power routes with the router.
//
// Description:
//
//	The router should already have any required middleware applied.
//
// Natural-language Endpoints:
//
//	POST /ai/query - Answer a natural-language question
//	GET  /ai/tests - List the test catalogue
//	GET  /ai/tests/:id - Describe one test
//	POST /ai/test-info - Describe one test (body: test_type)
//	GET  /ai/health - AI availability
//
// Calculation Endpoints:
//
//	POST /api/v1/:test_id - Run one calculation from explicit parameters
//
// Health Endpoints:
//
//	GET  /health - Liveness
//	GET  /metrics - Prometheus metrics
func RegisterRoutes(r gin.IRouter, handlers *Handlers) {
	ai := r.Group("/ai")
	{
		ai.POST("/query", handlers.HandleQuery)
		ai.GET("/tests", handlers.HandleListTests)
		ai.GET("/tests/:id", handlers.HandleGetTest)
		ai.POST("/test-info", handlers.HandleTestInfo)
		ai.GET("/health", handlers.HandleAIHealth)
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/:test_id", handlers.HandleCalculate)
	}

	r.GET("/health", handlers.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName labels otelgin spans. Default: "powerd"
	ServiceName string

	// AccessLog enables one log line per request.
	AccessLog bool

	// Logger for access logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewRouter builds a gin engine with the standard middleware and every
// power route registered.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "powerd"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(RequestIDMiddleware())
	router.Use(MetricsMiddleware())
	if cfg.AccessLog {
		router.Use(AccessLogMiddleware(cfg.Logger))
	}

	RegisterRoutes(router, handlers)
	return router
}
