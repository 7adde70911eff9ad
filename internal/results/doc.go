// Package results reads and updates the result tables embedded in eLabFTW
// experiment and template bodies.
//
// Bodies are HTML fragments. The first <table> is treated as the result grid:
// column one holds the parameter label, column two the result, then unit,
// reference range and observation. Bodies without a table fall back to
// {{placeholder}} markers for field discovery and to "key: value" lines for
// result updates.
package results
