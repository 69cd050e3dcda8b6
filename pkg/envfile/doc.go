// Package envfile reads and writes the per-unit .env file.
//
// The format is one KEY=VALUE pair per line. Keys must match
// [A-Za-z_][A-Za-z0-9_]*; other lines are ignored on read. A value wrapped in
// matching single or double quotes has the quotes removed. Newlines inside
// values are stored as the two characters \n and restored on read, so a
// Write followed by Read returns the original map.
//
// No variable expansion is performed.
package envfile
