// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry holds the OpenTelemetry tracer and Prometheus metrics
// shared by the search engines.
//
// Metrics are registered once on the default registry under the
// "aleutian_search_" prefix and labeled by algorithm. Both Tracer and
// Metrics are nil-safe so engines can call them unconditionally.
//
// Init installs the global OpenTelemetry providers for a process: spans go
// to an OTLP collector or stdout, and run-level OpenTelemetry metrics go to
// the Prometheus registry or stdout.
package telemetry
