// # Settings file
//
// A settings file is a single YAML document. The database_info block keeps
// the upper-case keys used by earlier deployments:
//
//	database_info:
//	  DRIVER: ODBC Driver 17 for SQL Server
//	  SERVER: localhost\SQLEXPRESS
//	  DATABASE: Digits
//	  USERNAME: ${DB_USERNAME}
//	  PASSWORD: ${DB_PASSWORD}
//	ingest:
//	  table: MNISTImages
//	  batch_size: 500
//	  compress: true
//
// # Environment Variable Substitution
//
// Any ${VAR_NAME} in the file is replaced with the environment value before
// parsing. Unset variables become empty strings.
//
// # Drivers
//
// DRIVER accepts sqlserver (or any ODBC "SQL Server" driver name), postgres,
// mysql and sqlite. DSN overrides every other connection field.
package config
