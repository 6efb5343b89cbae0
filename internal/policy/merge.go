package policy

import (
	"dario.cat/mergo"

	dErrors "ilsgate/pkg/domain-errors"
)

// Merge layers partner over library and returns the effective policy.
// Neither input is modified. Non-zero partner values win; maps merge key by
// key; lists replace. A partner expiry replaces the library expiry as a
// whole, since date and days are mutually exclusive. A passwordToPin the
// partner states, true or false, wins.
func Merge(library, partner Policy) (Policy, error) {
	merged := library.clone()
	src := partner.clone()
	if src.Expiry != (ExpiryPolicy{}) {
		merged.Expiry = ExpiryPolicy{}
	}
	// mergo skips a false source bool, so the flag is applied by hand.
	toPin := src.Passwords.PasswordToPin
	src.Passwords.PasswordToPin = nil
	if err := mergo.Merge(&merged, src, mergo.WithOverride); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to merge partner policy")
	}
	if toPin != nil {
		merged.Passwords.PasswordToPin = toPin
	}
	return merged, nil
}
