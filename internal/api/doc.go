// Package api hosts the HTTP server, middleware, and handlers for the display
// client and operators. Notable routes:
//   - GET /image?offset=&limit=&encoding= for windowed frame reads.
//   - GET /screenshot to force a synchronous capture.
//   - GET /frame and /frame.bmp for frame metadata and a debug bitmap.
//   - GET /hackernews, /stocks, /weather, /holdings and /config for the
//     dashboard's collaborator data.
//   - GET /captures and /captures/{capture_id} for capture history via the
//     CaptureHistory interface.
//   - GET /healthz / readyz for Kubernetes probes and /metrics for Prometheus.
package api
