package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件，由 internal/storage/mysql.Migrate 按文件名前缀的版本号顺序执行。
//
//go:embed *.sql
var Files embed.FS
