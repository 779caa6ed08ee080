package shortcode

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

const (
	// Charset алфавит base62: цифры, строчные, заглавные
	Charset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// DefaultLength длина кода по умолчанию
	DefaultLength = 6
	MinLength     = 6
	MaxLength     = 8
)

var ErrInvalidLength = errors.New("short code length out of range")

// Generator выдаёт кандидатов в короткие коды. Уникальность проверяет вызывающий.
type Generator interface {
	Generate() (string, error)
}

// Random генератор на криптографически стойком источнике
type Random struct {
	length int
	reader io.Reader
}

// NewRandom создаёт генератор кодов заданной длины (6-8 символов)
func NewRandom(length int) (*Random, error) {
	if length < MinLength || length > MaxLength {
		return nil, ErrInvalidLength
	}
	return &Random{length: length, reader: rand.Reader}, nil
}

func (g *Random) Generate() (string, error) {
	return FromReader(g.reader, g.length)
}

// FromReader строит код из произвольного источника случайности
func FromReader(r io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	max := big.NewInt(int64(len(Charset)))
	result := make([]byte, length)
	for i := range result {
		num, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		result[i] = Charset[num.Int64()]
	}
	return string(result), nil
}

// Valid проверяет, что код состоит только из символов алфавита
func Valid(code string) bool {
	if len(code) < MinLength || len(code) > MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
