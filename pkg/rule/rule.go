package rule

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// ErrInvalidPattern is returned when a rule pattern is not a valid regular expression.
var ErrInvalidPattern = errors.New("invalid pattern")

// Rule is a single sops creation rule. It decides which files need encryption,
// and which fields within those files hold secrets.
//
// Both patterns use Go regular expression syntax, and are matched as anchored
// prefixes: the pattern must match starting at the first character, but does
// not need to consume the whole string. So `^secrets/` and `secrets/` are
// equivalent, and `^password` also matches "password_hash".
//
// A rule without a path pattern never matches a file. A rule without an
// encrypted pattern never marks a field as sensitive.
type Rule struct {
	pathPattern      *regexp.Regexp // Compiled PathRegex.
	encryptedPattern *regexp.Regexp // Compiled EncryptedRegex.
	compiled         bool

	// PathRegex is a regular expression matched against file paths.
	PathRegex string `json:"path_regex,omitempty" jsonschema:"title=Path Regex,format=regex"`
	// EncryptedRegex is a regular expression matched against mapping keys.
	// Values under matching keys are base64-normalized before encryption.
	EncryptedRegex string `json:"encrypted_regex,omitempty" jsonschema:"title=Encrypted Regex,format=regex"`
}

// New creates a new compiled [Rule].
func New(pathRegex, encryptedRegex string) (*Rule, error) {
	r := &Rule{
		PathRegex:      pathRegex,
		EncryptedRegex: encryptedRegex,
	}

	err := r.Compile()
	if err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew creates a new rule and panics if there's an error.
func MustNew(pathRegex, encryptedRegex string) *Rule {
	r, err := New(pathRegex, encryptedRegex)
	if err != nil {
		panic(err)
	}

	return r
}

// Compile compiles the rule's patterns. Calling it more than once is a no-op.
func (r *Rule) Compile() error {
	if r.compiled {
		return nil
	}

	pathPattern, err := compile(r.PathRegex)
	if err != nil {
		return fmt.Errorf("path_regex: %w", err)
	}

	encryptedPattern, err := compile(r.EncryptedRegex)
	if err != nil {
		return fmt.Errorf("encrypted_regex: %w", err)
	}

	r.pathPattern = pathPattern
	r.encryptedPattern = encryptedPattern
	r.compiled = true

	return nil
}

// MatchPath reports whether the rule applies to the file at path.
// Paths are cleaned and compared in slash-separated form, so "./secrets/a.yaml"
// and "secrets//a.yaml" both match like "secrets/a.yaml".
func (r *Rule) MatchPath(path string) bool {
	r.mustBeCompiled()

	return matchPrefix(r.pathPattern, filepath.ToSlash(filepath.Clean(path)))
}

// MatchField reports whether values under the mapping key must be encoded.
func (r *Rule) MatchField(key string) bool {
	r.mustBeCompiled()

	return matchPrefix(r.encryptedPattern, key)
}

func (r *Rule) String() string {
	return fmt.Sprintf("path_regex=%q encrypted_regex=%q", r.PathRegex, r.EncryptedRegex)
}

func (r *Rule) mustBeCompiled() {
	if !r.compiled {
		panic(errors.New("rule patterns were not compiled"))
	}
}

func compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil //nolint:nilnil // An empty pattern never matches.
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
	}

	return re, nil
}

// matchPrefix reports whether re matches s starting at offset zero.
// The leftmost match is reported first, so any match anchored at zero is found.
func matchPrefix(re *regexp.Regexp, s string) bool {
	if re == nil {
		return false
	}

	loc := re.FindStringIndex(s)

	return loc != nil && loc[0] == 0
}
