// Package catalog loads the node inventory and discovers capture artifacts
// on disk.
//
// The inventory lists camera/sensor nodes and how to reach them:
//
//	nodes:
//	  - id: cam1
//	    ip: 10.0.0.5
//	    stream_path: /video
//	    autostart: true
//
// YAML (.yaml, .yml) and TOML (.toml) files are supported. ScanCaptures
// walks a capture directory for handshake and PMKID files.
package catalog
