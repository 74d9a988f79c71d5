package auth

import "golang.org/x/crypto/bcrypt"

// Cost 12 keeps verification around 250ms on commodity hardware, which also
// damps online guessing alongside the login limiter.
const bcryptCost = 12

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares in constant time; bcrypt does the padding work.
func VerifyPassword(encoded, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(pw)) == nil
}
