package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken хеширует refresh token с использованием SHA256
// Хеш детерминированный: предъявленный токен сравнивается с сохраненным
// хешем простым равенством, в том числе в условии SQL UPDATE при ротации
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerifyTokenHash проверяет, соответствует ли токен сохраненному хешу.
// Сравнение выполняется за константное время.
func VerifyTokenHash(token, storedHash string) bool {
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
