// Package composer reads release metadata published by getcomposer.org.
//
// Two endpoints are used: /versions, a JSON document mapping release
// channels ("stable", "preview", "1", "2", ...) to their current versions,
// and /download/<channel-or-version>/composer.phar.sha256sum, which
// carries the digest of each phar. The latter makes [Client] an
// acquire.ChecksumSource for composer-phar artifacts.
package composer
