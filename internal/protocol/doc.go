// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

/*
Package protocol defines the JSON messages exchanged over every websocket in
the system: providers, the configuration UI and overlays talking to the hub,
the hub talking to the aggregator, and extension front-ends talking to the
aggregator.

Every message is a JSON object with a "type" discriminator. Simple messages
keep their fields at the top level, data-bearing ones nest a "data" object:

	{"type":"NextPoll","in":300}
	{"type":"Execution.StartRequest","modificationId":"buzz","length":60}
	{"type":"Info.Open","data":{"modifications":[],"pollActive":false}}

Decode peeks at the discriminator, unmarshals into the concrete struct and
runs the validator tags:

	msg, err := protocol.Decode(frame)
	switch m := msg.(type) {
	case *protocol.ClientRegister:
	    ...
	}

Encode writes the discriminator in front of the struct fields.

Option values (defaults, stored values, patches) are bool, float64 or string
after decoding and are kept as interface values.
*/
package protocol
