// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package middleware holds the HTTP middleware of the ops API.

  - RequestID takes X-Request-ID from the request or generates a UUID, echoes
    it in the response and stores it as the logging correlation id.
  - PrometheusMetrics records request count, duration and in-flight requests,
    labelled by the chi route pattern so path parameters do not inflate
    cardinality.

Both have the func(http.Handler) http.Handler shape and plug into chi's
r.Use directly:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
