package security

import "golang.org/x/crypto/bcrypt"

// Passwords hashes and checks directory credentials with bcrypt. A zero
// cost selects the bcrypt default; out-of-range costs are clamped so a
// misconfigured value cannot disable hashing.
type Passwords struct {
	cost int
}

func NewPasswords(cost int) *Passwords {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Passwords{cost: cost}
}

func (p *Passwords) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Check returns a non-nil error when plain does not match the stored hash.
func (p *Passwords) Check(plain, hashed string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
