// Package itempath parses and formats address paths that name nested
// sub-values: record fields, array elements and the append position.
//
// A path is written as a dotted field name followed by any number of
// `.field`, `[index]` or `[+]` steps:
//
//	dG_array[3][0].value
//	endpoint_array[+]
//
// Parse and Path.String are exact inverses for every string Parse accepts.
// To keep that law total, indexes must be written canonically (no sign, no
// leading zeros, no whitespace) and `+` may only appear as the final step.
//
// This package imports nothing internal. It is the foundation that vtype,
// value and graph use to address values.
package itempath
