// Package mysql opens MySQL connection pools and applies the schema
// migrations embedded from deploy/migrations. Repositories built on top of
// it live with their domain packages.
package mysql
