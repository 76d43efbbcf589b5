package featureflag

import "strings"

// FeatureFlag is a lookup map for features that are enabled.
type FeatureFlag map[Flag]struct{}

// New returns feature flags initialized with a list of flags. Flags are case
// insensitive.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		if f = strings.TrimSpace(f); f != "" {
			featureFlag[Flag(strings.ToUpper(f))] = struct{}{}
		}
	}
	return featureFlag
}

// IsSet reports whether the flag is set.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs function `do` if flag is set in the feature flags
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		return
	}
	do()
}

// List returns the set flags.
func (f FeatureFlag) List() []string {
	flags := make([]string, 0, len(f))
	for flag := range f {
		flags = append(flags, string(flag))
	}
	return flags
}
