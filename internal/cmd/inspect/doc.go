// Package inspectcmd implements the offline bucket inspection used by the
// CLI. It opens one bucket database directly, decodes the index and payload
// records, and prints a per-kind summary or a full dump.
package inspectcmd
