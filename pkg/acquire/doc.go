// Package acquire downloads artifacts from ordered mirror sets into the
// local filesystem.
//
// [Acquirer.Fetch] implements the download contract used by the build
// pipeline and the orchestrator:
//
//  1. A live entry in the artifact [cache.Store] under the request's logical
//     key is copied to the destination and returned with FromCache set.
//  2. Otherwise URLs are tried strictly in order. Any failure of one URL
//     (transport error, non-2xx status, empty body, checksum mismatch) is
//     logged and the next URL is tried. A later URL is never contacted
//     before every earlier one has failed.
//  3. Each transfer is either a single GET or, when enabled and the server
//     advertises byte ranges, a chunked transfer whose parts are fetched by
//     a bounded worker pool and written by index. A failed chunked transfer
//     is retried once as a single GET on the same URL.
//  4. The downloaded file is verified against the expected checksums before
//     it is renamed into place, so the destination never holds a partial
//     or corrupt file.
//  5. A successful network fetch is stored in the cache together with its
//     computed checksums and expiry.
//
// When every URL fails the error is MIRROR_EXHAUSTED wrapping the last
// failure.
package acquire
