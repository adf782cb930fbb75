// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

/*
Package supervisor runs the long-lived parts of the animedex server under a
suture v4 supervisor tree.

	Root ("animedex")
	├── data-layer
	│   ├── pipeline-scheduler
	│   └── audit-retention
	├── messaging-layer
	│   └── catalog-ingest (when NATS is enabled)
	└── api-layer
	    └── http-server

Each layer restarts its own services with exponential backoff. Supervisor
events are logged through sutureslog, and every service termination or
panic increments the service restart counter.

Usage in main.go:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewPipelineService(runner, cfg.Pipeline))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)

The service wrappers live in the services subpackage.
*/
package supervisor
