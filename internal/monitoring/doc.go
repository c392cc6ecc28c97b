/*
Package monitoring provides Prometheus metrics for the IPC service.

# Overview

Tracks syscall-surface HTTP requests plus the IPC-level counters the kernel
operators care about: messages through queues, shared memory attach/detach
traffic, semaphore contention, and event channel throughput.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	metrics.RecordMessage("inline")
	metrics.RecordSemaphoreWait("blocked")
*/
package monitoring
