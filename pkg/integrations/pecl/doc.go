// Package pecl reads release metadata from the PECL REST interface.
//
// The REST tree at https://pecl.php.net/rest/r/<package>/ exposes the
// latest stable release as plain text (stable.txt) and the full release
// history as XML (allreleases.xml). PECL publishes no digests for its
// tarballs, so [Client.Checksums] always returns an empty set and the
// extension tarballs are validated by size only.
package pecl
