// Package value implements typed, versioned, immutable values.
//
// A Value pairs a *vtype.Type with a payload whose shape matches the type's
// kind:
//   - null: nil
//   - bool, int, float, string, file: bool, int64, float64, string, string
//   - list: a record of named sub-values
//   - array: an ordered sequence of sub-values (missing elements are holes)
//   - dict: a string-keyed map of sub-values
//
// Values are never modified after construction. Set produces a new root
// that shares every untouched subtree with the old one and carries a
// version one higher than the node it replaces along the touched spine.
// Setting a value that is content-equal to the existing one returns the
// original root, so versions only move on real changes.
//
// Content equality and hashing go through a canonical JSON rendering
// (sorted keys, NFC-normalized strings) and never look at versions.
package value
