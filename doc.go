// Package ternbase maintains an on-disk knowledge base of small Boolean
// expression trees used to decide structural equivalence of larger
// expressions.
//
// Candidate trees are generated up to a bounded node count, grouped into
// equivalence classes (signatures) modulo input-variable permutation, and
// each class records a set of acceptable members: concrete trees that can be
// assembled from already-known members without triggering further rewrites.
// Lookup runs through imprints: fingerprints of a tree's truth table taken
// under a chosen subset of the 9! input permutations, organised so a single
// associative probe identifies both the class and the permutation mapping
// the query onto the canonical member.
//
// The root package carries shared plumbing (logging, run flags, the progress
// tick). The engine lives in the subpackages:
//
//   - tern: the tiny expression tree, level-1 normalisation, postfix
//     encode/decode, and bit-parallel truth-table evaluation
//   - transform: the 9! variable permutations and their name index
//   - store: the packed database, its hash indices and the imprint engine
//   - member: the signature-group member collector
//   - generator: exhaustive candidate enumeration with windowing
//   - metrics: static presets and the prime table for index sizing
//   - blobstore: database artifacts on local disk or object storage
package ternbase
