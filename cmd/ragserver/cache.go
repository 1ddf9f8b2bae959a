// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var cacheHTTPClient = &http.Client{Timeout: 10 * time.Second}

// runCacheStats prints the running server's per-layer hit/miss counters as
// formatted JSON.
func runCacheStats(cmd *cobra.Command, args []string) {
	body, err := cacheGet("/v1/cache/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache stats: %v\n", err)
		os.Exit(1)
	}
	printPrettyJSON(body)
}

// runCacheClear empties every cache layer on the running server.
func runCacheClear(cmd *cobra.Command, args []string) {
	body, err := cachePost("/v1/cache/clear", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache clear: %v\n", err)
		os.Exit(1)
	}
	printPrettyJSON(body)
}

// runCacheInvalidate drops one query's cached answer across every layer.
func runCacheInvalidate(cmd *cobra.Command, args []string) {
	payload, err := json.Marshal(map[string]string{"query": args[0]})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache invalidate: %v\n", err)
		os.Exit(1)
	}
	body, err := cachePost("/v1/cache/invalidate", payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache invalidate: %v\n", err)
		os.Exit(1)
	}
	printPrettyJSON(body)
}

func cacheGet(path string) ([]byte, error) {
	resp, err := cacheHTTPClient.Get(apiBase + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readCacheResponse(resp)
}

func cachePost(path string, payload []byte) ([]byte, error) {
	resp, err := cacheHTTPClient.Post(apiBase+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readCacheResponse(resp)
}

func readCacheResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return body, nil
}

func printPrettyJSON(raw []byte) {
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(indented.String())
}
