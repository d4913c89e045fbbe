// Package fswatch watches a storage directory and reports changed keys.
//
// Events for hidden names (atomic-write temp files, editor swap files) are
// ignored. Bursts are coalesced: keys touched within the debounce window are
// delivered together, and deliveries are throttled by a token-bucket limiter.
package fswatch
