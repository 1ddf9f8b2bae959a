// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ragserver starts, and operates on, the policy-document RAG/QA
// service. `ragserver serve` runs the HTTP server; `ragserver cache ...`
// is an operator CLI calling a running server's cache endpoints.
//
// # Usage
//
//	go build -o ragserver ./cmd/ragserver
//	./ragserver serve
//	./ragserver cache stats --api-base http://localhost:12210
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("ragserver: %v", err)
	}
}
