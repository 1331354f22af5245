// Package phpnet reads the php.net release index.
//
// The index at https://www.php.net/releases/?json lists every release of a
// major version together with the sha256 (or, for old releases, md5)
// digests of its source tarballs. phpup uses it to expand partial versions
// ("8.2" to the newest 8.2.x) and as the [acquire.ChecksumSource] for
// php-source artifacts.
//
// [acquire.ChecksumSource]: github.com/matzehuels/phpup/pkg/acquire.ChecksumSource
package phpnet
