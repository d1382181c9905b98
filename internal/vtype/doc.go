// Package vtype implements the nominal type system that validates every
// value flowing through a network.
//
// Types form a single-rooted inheritance tree. The root is `value`; the
// built-in leaves are null, bool, int, float, string and file; the built-in
// compound types are list (a named, ordered, heterogeneous member set),
// array (homogeneous sequence) and dict (homogeneous string-keyed map).
//
// Each type carries a Kind tag inherited from its parent. Operations that
// depend on the representation (literal parsing, path resolution) dispatch
// on the kind tag.
//
// # Registries
//
// A Registry owns the types of one running workflow. There are no
// package-level type singletons: every component that resolves types takes
// an explicit *Registry, so independent workflows can share a process.
//
// # List member inheritance
//
// A derived list type may add members and may re-declare an inherited
// member, provided the new member type is a subtype of the inherited one.
// Member sets are immutable once registered; a re-declaration shadows the
// parent's entry and never modifies the parent type.
package vtype
