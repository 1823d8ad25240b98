// Package cache keeps local copies of remote objects under
// CachePath/bin/<h0>/<h1>/<hash>, where hash is the blake3 digest of the
// normalized key. The file store writes through temp file + rename and
// exposes file info (size, modtime) so the Gateway can compare the local copy
// against the remote modification time. The Gateway memoizes remote
// timestamps for a short window and deduplicates concurrent fetches per key.
package cache
