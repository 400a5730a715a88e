// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package config loads the settings for both binaries.

Sources are layered with koanf, later layers overriding earlier ones:

 1. Struct defaults (defaultConfig)
 2. An optional YAML file (CONFIG_PATH, or the first of DefaultConfigPaths)
 3. Environment variables, through the explicit mapping in envTransformFunc

Example YAML:

	hub:
	  port: 8081
	  data_path: /var/lib/modvote
	  aggregator_url: wss://ebs.example.com
	aggregator:
	  port: 30000
	  static_dir: /srv/modvote/static
	twitch:
	  client_id: abc
	  required_scopes: [channel:read:subscriptions]
	logging:
	  level: debug

Secrets are usually provided through the environment (API_KEY, EBS_KEY).
The common sections are checked by Validate; the aggregator binary also
calls ValidateAggregator because only it talks to Twitch.
*/
package config
