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

import "github.com/spf13/cobra"

// apiBase points the cache subcommands at a running server; it plays no
// role in serveCmd, which builds its own in-process engine.
var apiBase string

var rootCmd = &cobra.Command{
	Use:   "ragserver",
	Short: "Policy-document RAG/QA service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Run:   runServe,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Operate on a running server's result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print result-cache hit/miss counters",
	Run:   runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty every result-cache layer",
	Run:   runCacheClear,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate [query text]",
	Short: "Drop a cached answer for one query",
	Args:  cobra.ExactArgs(1),
	Run:   runCacheInvalidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "http://localhost:12210",
		"Base URL of a running ragserver instance")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}
