// Package rule implements sops creation rules.
//
// A rule pairs a path_regex, which selects the files it applies to, with an
// encrypted_regex, which selects the mapping keys whose values are secrets.
// Both are Go regular expressions matched as anchored prefixes.
package rule
