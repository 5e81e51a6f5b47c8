// Package config defines configuration structures for the wplace-downloader CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (WPLACE_ prefix), optionally from a .env file
//   - YAML configuration file
//
// # File Format
//
//	base_url: https://backend.wplace.live
//	output_dir: images
//	workers: 3              # per egress route
//	request_interval: 1s
//	spawn_interval: 500ms
//	timeout: 30s
//	retry:
//	  delay: 10s            # when the server sends no Retry-After
//	  margin: 1.05
//	  max_attempts: 0       # 0 retries forever
//	probe: {x: 0, y: 0}
//	merge: true
//	merge_memory_limit: 4GB
//	placeholder: empty.png
//	publish_url: s3://bucket/prefix?region=eu-west-1
//	headers:
//	  User-Agent: wplace-downloader
//	proxies:
//	  - {url: "http://proxy.local:8080", username: u, password: p, type: http}
//	  - {url: "192.0.2.10", type: srcip}
//	jobs:
//	  - {name: spawn, x_start: 705, y_start: 705, x_end: 725, y_end: 725}
package config
