// Package gitfetch implements the fetch stage: it shallow-clones each
// repository with the git binary into a scratch directory and flattens the
// interesting source files into a single text digest for the model.
package gitfetch
