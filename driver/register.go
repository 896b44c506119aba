// Package driver registers the database/sql drivers and sqlx metadata
// product definitions (dialect-specific metadata queries) for the drivers a
// <dataSource driver="..."> element may name. Importing this package (with
// a blank identifier) guarantees both the driver sql.Open registration and
// sqlx product detection work out of the box.
//
//	import _ "github.com/viant/sqlmapper/driver"
//
// The package has no public API; its only purpose is to execute the init
// side effects of the imported modules.
package driver

import (
	// database/sql drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	// Oracle driver
	_ "github.com/sijms/go-ora/v2"

	// sqlx metadata product registrations (dialect-specific queries)
	_ "github.com/viant/sqlx/metadata/product/ansi"
	_ "github.com/viant/sqlx/metadata/product/mysql"
	_ "github.com/viant/sqlx/metadata/product/oracle"
	_ "github.com/viant/sqlx/metadata/product/pg"
	_ "github.com/viant/sqlx/metadata/product/sqlite"
)
